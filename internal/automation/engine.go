//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"cync-go-home/internal/bridge"
)

// luaEventHandler is a registered Lua callback for an event pattern.
type luaEventHandler struct {
	eventType string
	deviceID  uint32 // 0 = any device
	fn        *lua.LFunction
}

// scriptVM is one running Lua VM. All Lua access is serialized through the
// commands channel; the VM goroutine is the only caller of the state.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState)
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	handlers []luaEventHandler
}

// Engine runs sandboxed Lua automations fed from the bridge event bus.
type Engine struct {
	core   *bridge.Bridge
	logger *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM
	unsub func()
}

// NewEngine creates an automation engine over the bridge core.
func NewEngine(core *bridge.Bridge, logger *slog.Logger) *Engine {
	return &Engine{
		core:   core,
		logger: logger.With("component", "automation"),
		vms:    make(map[string]*scriptVM),
	}
}

// Start loads every script in dir and subscribes to the event bus.
func (e *Engine) Start(dir string) error {
	scripts, err := LoadScripts(dir)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.unsub = e.core.Events().OnAll(e.dispatchEvent)
	e.logger.Info("automation engine started", "scripts", len(e.vms))
	return nil
}

// Stop cancels all script VMs and unsubscribes.
func (e *Engine) Stop() {
	e.mu.Lock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.mu.Unlock()

	if e.unsub != nil {
		e.unsub()
	}
	e.logger.Info("automation engine stopped")
}

func (e *Engine) startScript(s Script) error {
	ctx, cancel := context.WithCancel(context.Background())

	L := lua.NewState()
	sandbox(L)

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerCyncModule(L, vm, e)

	// Top-level execution registers the cync.on handlers.
	if err := L.DoString(s.Source); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("automation: execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID)
	return nil
}

// sandbox strips filesystem and process access from a VM.
func sandbox(L *lua.LState) {
	for _, global := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(global, lua.LNil)
	}
}

// dispatchEvent routes a bridge event to every matching Lua handler.
func (e *Engine) dispatchEvent(event bridge.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		vm.mu.Lock()
		handlers := make([]luaEventHandler, len(vm.handlers))
		copy(handlers, vm.handlers)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, event) {
				continue
			}
			fn := h.fn
			select {
			case <-vm.ctx.Done():
			case vm.commands <- func(L *lua.LState) {
				e.callHandler(L, fn, event)
			}:
			default:
				e.logger.Warn("script command channel full, dropping event")
			}
		}
	}
}

func matchesHandler(h luaEventHandler, event bridge.Event) bool {
	if h.eventType != event.Type {
		return false
	}
	if h.deviceID == 0 {
		return true
	}
	deviceID, _ := event.Data["device_id"].(uint32)
	return deviceID == h.deviceID
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, event bridge.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	eventTable := L.NewTable()
	eventTable.RawSetString("type", lua.LString(event.Type))
	for k, v := range event.Data {
		eventTable.RawSetString(k, goToLua(L, v))
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, eventTable); err != nil {
		e.logger.Error("lua handler error", "err", err)
	}
}

// goToLua converts a Go value from event data into a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case bridge.BulbState:
		t := L.NewTable()
		t.RawSetString("device_id", lua.LNumber(val.DeviceID))
		t.RawSetString("name", lua.LString(val.Name))
		t.RawSetString("connected", lua.LBool(val.Connected))
		t.RawSetString("on", lua.LBool(val.On))
		t.RawSetString("brightness", lua.LNumber(val.Brightness))
		t.RawSetString("color_temp", lua.LNumber(val.ColorTemp))
		t.RawSetString("hue", lua.LNumber(val.Hue))
		t.RawSetString("saturation", lua.LNumber(val.Saturation))
		return t
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
