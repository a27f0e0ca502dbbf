//go:build !no_automation

package automation

import (
	lua "github.com/yuin/gopher-lua"

	"cync-go-home/internal/bridge"
)

// registerCyncModule installs the `cync` table into a script VM:
//
//	cync.on(event_type, fn)
//	cync.on(event_type, {device_id = N}, fn)
//	cync.log(msg)
//	cync.set_on(device_id, bool)
//	cync.set_brightness(device_id, 0..100)
//	cync.set_color_temp(device_id, 140..500)
//	cync.set_hue(device_id, 0..360)
//	cync.set_saturation(device_id, 0..100)
func registerCyncModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		eventType := L.CheckString(1)
		handler := luaEventHandler{eventType: eventType}

		switch L.GetTop() {
		case 2:
			handler.fn = L.CheckFunction(2)
		default:
			filter := L.CheckTable(2)
			if v := filter.RawGetString("device_id"); v != lua.LNil {
				if n, ok := v.(lua.LNumber); ok {
					handler.deviceID = uint32(n)
				}
			}
			handler.fn = L.CheckFunction(3)
		}

		vm.mu.Lock()
		vm.handlers = append(vm.handlers, handler)
		vm.mu.Unlock()
		return 0
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		e.logger.Info("script log", "msg", L.CheckString(1))
		return 0
	}))

	mod.RawSetString("set_on", L.NewFunction(func(L *lua.LState) int {
		on := L.CheckBool(2)
		e.intent(L, bridge.Intent{SetOn: &on})
		return 0
	}))

	mod.RawSetString("set_brightness", L.NewFunction(func(L *lua.LState) int {
		v := L.CheckNumber(2)
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		bri := uint8(v)
		e.intent(L, bridge.Intent{SetBrightness: &bri})
		return 0
	}))

	mod.RawSetString("set_color_temp", L.NewFunction(func(L *lua.LState) int {
		ct := int(L.CheckNumber(2))
		e.intent(L, bridge.Intent{SetColorTemp: &ct})
		return 0
	}))

	mod.RawSetString("set_hue", L.NewFunction(func(L *lua.LState) int {
		hue := float64(L.CheckNumber(2))
		e.intent(L, bridge.Intent{SetHue: &hue})
		return 0
	}))

	mod.RawSetString("set_saturation", L.NewFunction(func(L *lua.LState) int {
		sat := float64(L.CheckNumber(2))
		e.intent(L, bridge.Intent{SetSaturation: &sat})
		return 0
	}))

	L.SetGlobal("cync", mod)
}

// intent forwards a script command into the core, surfacing rejections to the
// script as Lua errors.
func (e *Engine) intent(L *lua.LState, intent bridge.Intent) {
	deviceID := uint32(L.CheckNumber(1))
	if err := e.core.UserIntent(deviceID, intent); err != nil {
		e.logger.Warn("script intent rejected", "device", deviceID, "err", err)
		L.RaiseError("intent rejected: %v", err)
	}
}
