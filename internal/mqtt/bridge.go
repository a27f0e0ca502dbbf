//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"cync-go-home/internal/bridge"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge is the MQTT host adapter: it exposes bulbs to Home Assistant via
// discovery, publishes retained state, and turns `<prefix>/<bulb>/set`
// commands into user intents.
type Bridge struct {
	client pahomqtt.Client
	core   *bridge.Bridge
	prefix string
	logger *slog.Logger
	unsub  func()

	mu     sync.Mutex
	topics map[uint32]string         // deviceID -> topic segment
	states map[uint32]map[string]any // deviceID -> retained state document
}

// NewBridge creates and connects an MQTT bridge. Attach it to the core with
// AddHost before importing inventory.
func NewBridge(core *bridge.Bridge, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		core:   core,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
		topics: make(map[uint32]string),
		states: make(map[uint32]map[string]any),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("cync-go-home").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publish(b.prefix+"/bridge/state", []byte("online"), true)
			b.resubscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to core events for availability publishing.
func (b *Bridge) Start() {
	b.unsub = b.core.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(b.prefix+"/bridge/state", []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// ExposeCapabilities implements bridge.HostBridge: publish the HA discovery
// config for the bulb and subscribe its command topic.
func (b *Bridge) ExposeCapabilities(deviceID uint32, name string, caps bridge.Capabilities) {
	topic := topicName(name, deviceID)
	b.mu.Lock()
	b.topics[deviceID] = topic
	b.mu.Unlock()

	msg := buildLightDiscovery(deviceID, name, caps, b.prefix, topic)
	b.publish(msg.Topic, msg.Payload, true)
	b.subscribeCommands(deviceID, topic)
	b.logger.Info("published HA discovery", "device", deviceID, "name", name)
}

// NotifyState implements bridge.HostBridge: merge the update into the
// retained state document and publish it.
func (b *Bridge) NotifyState(deviceID uint32, update bridge.StateUpdate) {
	b.mu.Lock()
	topic, ok := b.topics[deviceID]
	if !ok {
		b.mu.Unlock()
		return
	}
	state := b.states[deviceID]
	if state == nil {
		state = make(map[string]any)
		b.states[deviceID] = state
	}
	if update.On != nil {
		if *update.On {
			state["state"] = "ON"
		} else {
			state["state"] = "OFF"
		}
	}
	if update.Brightness != nil {
		state["brightness"] = *update.Brightness
	}
	if update.ColorTemp != nil {
		state["color_temp"] = *update.ColorTemp
	}
	if update.Hue != nil && update.Saturation != nil {
		state["color"] = map[string]any{"h": *update.Hue, "s": *update.Saturation}
	}
	payload := mustJSON(state)
	b.mu.Unlock()

	b.publish(b.prefix+"/"+topic, payload, true)
}

func (b *Bridge) handleEvent(event bridge.Event) {
	switch event.Type {
	case bridge.EventBulbOnline:
		b.publishAvailability(event, "online")
	case bridge.EventBulbOffline:
		b.publishAvailability(event, "offline")
	case bridge.EventSessionState:
		if st, _ := event.Data["state"].(string); st == "connected" {
			b.publish(b.prefix+"/bridge/state", []byte("online"), true)
		}
	}
}

func (b *Bridge) publishAvailability(event bridge.Event, state string) {
	deviceID, ok := event.Data["device_id"].(uint32)
	if !ok {
		return
	}
	b.mu.Lock()
	topic, known := b.topics[deviceID]
	b.mu.Unlock()
	if !known {
		return
	}
	b.publish(b.prefix+"/"+topic+"/availability", []byte(state), true)
}

func (b *Bridge) subscribeCommands(deviceID uint32, topic string) {
	b.client.Subscribe(b.prefix+"/"+topic+"/set", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(deviceID, msg.Payload())
	})
}

func (b *Bridge) resubscribeCommands() {
	b.mu.Lock()
	topics := make(map[uint32]string, len(b.topics))
	for id, topic := range b.topics {
		topics[id] = topic
	}
	b.mu.Unlock()
	for id, topic := range topics {
		b.subscribeCommands(id, topic)
	}
}

func (b *Bridge) handleCommand(deviceID uint32, payload []byte) {
	intents, err := commandIntents(payload)
	if err != nil {
		b.logger.Warn("invalid command JSON", "device", deviceID, "err", err)
		return
	}
	for _, intent := range intents {
		if err := b.core.UserIntent(deviceID, intent); err != nil {
			b.logger.Warn("command rejected", "device", deviceID, "err", err)
		}
	}
}

// commandIntents parses a Home Assistant JSON light command into user
// intents, in apply order: power first, then brightness, temperature, color.
func commandIntents(payload []byte) ([]bridge.Intent, error) {
	var cmd struct {
		State      *string  `json:"state"`
		Brightness *float64 `json:"brightness"`
		ColorTemp  *float64 `json:"color_temp"`
		Color      *struct {
			H *float64 `json:"h"`
			S *float64 `json:"s"`
		} `json:"color"`
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, err
	}

	var intents []bridge.Intent
	if cmd.State != nil {
		on := strings.EqualFold(*cmd.State, "ON")
		intents = append(intents, bridge.Intent{SetOn: &on})
	}
	if cmd.Brightness != nil {
		v := *cmd.Brightness
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		bri := uint8(v)
		intents = append(intents, bridge.Intent{SetBrightness: &bri})
	}
	if cmd.ColorTemp != nil {
		ct := int(*cmd.ColorTemp)
		intents = append(intents, bridge.Intent{SetColorTemp: &ct})
	}
	if cmd.Color != nil {
		if cmd.Color.H != nil {
			intents = append(intents, bridge.Intent{SetHue: cmd.Color.H})
		}
		if cmd.Color.S != nil {
			intents = append(intents, bridge.Intent{SetSaturation: cmd.Color.S})
		}
	}
	return intents, nil
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
