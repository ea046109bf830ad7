/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package console

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

const (
	memorySize = 0x1000
	memoryBase = memory.Pointer(0xB0000)

	numColumns = 80
	numRows    = 25
)

var textPalette = [16]tcell.Color{
	tcell.ColorBlack,
	tcell.ColorNavy,
	tcell.ColorGreen,
	tcell.ColorTeal,
	tcell.ColorMaroon,
	tcell.ColorPurple,
	tcell.ColorOlive,
	tcell.ColorSilver,
	tcell.ColorGray,
	tcell.ColorBlue,
	tcell.ColorLime,
	tcell.ColorAqua,
	tcell.ColorRed,
	tcell.ColorFuchsia,
	tcell.ColorYellow,
	tcell.ColorWhite,
}

type keyboardHandler interface {
	PushScancode(code byte)
}

// Device is a monochrome-adapter style text console rendered with tcell.
// It is the one host-facing surface in the repository; everything else
// talks to the machine through ports and memory.
type Device struct {
	lock     sync.RWMutex
	quitChan chan struct{}

	dirty bool
	mem   [memorySize]byte

	crtReg  [0x100]byte
	crtAddr byte

	modeCtrl, refresh byte
	shutdown          int32

	Keyboard keyboardHandler
	screen   tcell.Screen
}

func (m *Device) Install(p processor.Processor) error {
	if err := p.InstallMemoryDevice(m, memoryBase, memoryBase+memorySize-1); err != nil {
		return err
	}
	if err := p.InstallIODeviceAt(m, 0x3B4, 0x3B5, 0x3B8, 0x3BA); err != nil {
		return err
	}

	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)
	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	s.DisableMouse()

	m.screen = s
	m.quitChan = make(chan struct{})
	go m.eventLoop()
	go m.renderLoop()
	return nil
}

func (m *Device) Name() string {
	return "Text Console (MDA compatible)"
}

func (m *Device) Reset() {
	m.lock.Lock()
	m.crtReg = [0x100]byte{}
	m.crtAddr = 0
	m.modeCtrl = 0
	m.dirty = true
	m.lock.Unlock()
}

func (m *Device) Step(int) error {
	return nil
}

func (m *Device) Close() error {
	close(m.quitChan)
	m.screen.Fini()
	return nil
}

func (m *Device) ShutdownRequested() bool {
	return atomic.LoadInt32(&m.shutdown) != 0
}

func (m *Device) eventLoop() {
	for {
		ev := m.screen.PollEvent()
		if ev == nil {
			return
		}
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlC {
				atomic.StoreInt32(&m.shutdown, 1)
				continue
			}
			if m.Keyboard == nil {
				continue
			}
			if code, ok := scancodeFromKey(ev); ok {
				m.Keyboard.PushScancode(code)
				m.Keyboard.PushScancode(code | 0x80)
			}
		case *tcell.EventResize:
			m.lock.Lock()
			m.dirty = true
			m.lock.Unlock()
		}
	}
}

func (m *Device) renderLoop() {
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	for {
		select {
		case <-m.quitChan:
			return
		case <-ticker.C:
			m.redraw()
		}
	}
}

func (m *Device) redraw() {
	m.lock.Lock()
	if !m.dirty {
		m.lock.Unlock()
		return
	}
	m.dirty = false

	var buffer [memorySize]byte
	copy(buffer[:], m.mem[:])
	cursor := uint16(m.crtReg[0x0E])<<8 | uint16(m.crtReg[0x0F])
	m.lock.Unlock()

	for y := 0; y < numRows; y++ {
		for x := 0; x < numColumns; x++ {
			offset := (y*numColumns + x) * 2
			ch, attr := buffer[offset], buffer[offset+1]
			style := tcell.StyleDefault.
				Foreground(textPalette[attr&0xF]).
				Background(textPalette[attr&0x70>>4]).
				Blink(attr&0x80 != 0)
			m.screen.SetContent(x, y, rune(ch), nil, style)
		}
	}

	m.screen.ShowCursor(int(cursor%numColumns), int(cursor/numColumns))
	m.screen.Show()
}

func (m *Device) ReadByte(addr memory.Pointer) byte {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.mem[addr-memoryBase]
}

func (m *Device) WriteByte(addr memory.Pointer, data byte) {
	m.lock.Lock()
	m.mem[addr-memoryBase] = data
	m.dirty = true
	m.lock.Unlock()
}

func (m *Device) In(port uint16) byte {
	m.lock.Lock()
	defer m.lock.Unlock()

	switch port {
	case 0x3B5:
		return m.crtReg[m.crtAddr]
	case 0x3B8:
		return m.modeCtrl
	case 0x3BA:
		// Flip the retrace bits so polling loops make progress.
		m.refresh ^= 0x9
		return m.refresh
	}
	return 0
}

func (m *Device) Out(port uint16, data byte) {
	m.lock.Lock()
	defer m.lock.Unlock()

	switch port {
	case 0x3B4:
		m.crtAddr = data
	case 0x3B5:
		m.crtReg[m.crtAddr] = data
		m.dirty = true
	case 0x3B8:
		m.modeCtrl = data
	}
}

// scancodeFromKey maps a terminal key event to an XT make code.
func scancodeFromKey(ev *tcell.EventKey) (byte, bool) {
	switch ev.Key() {
	case tcell.KeyEscape:
		return 0x01, true
	case tcell.KeyEnter:
		return 0x1C, true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return 0x0E, true
	case tcell.KeyTab:
		return 0x0F, true
	case tcell.KeyUp:
		return 0x48, true
	case tcell.KeyDown:
		return 0x50, true
	case tcell.KeyLeft:
		return 0x4B, true
	case tcell.KeyRight:
		return 0x4D, true
	case tcell.KeyF1, tcell.KeyF2, tcell.KeyF3, tcell.KeyF4, tcell.KeyF5,
		tcell.KeyF6, tcell.KeyF7, tcell.KeyF8, tcell.KeyF9, tcell.KeyF10:
		return 0x3B + byte(ev.Key()-tcell.KeyF1), true
	case tcell.KeyRune:
		code, ok := runeToScancode[ev.Rune()]
		return code, ok
	}
	return 0, false
}

var runeToScancode = map[rune]byte{
	'1': 0x02, '2': 0x03, '3': 0x04, '4': 0x05, '5': 0x06,
	'6': 0x07, '7': 0x08, '8': 0x09, '9': 0x0A, '0': 0x0B,
	'-': 0x0C, '=': 0x0D,
	'q': 0x10, 'w': 0x11, 'e': 0x12, 'r': 0x13, 't': 0x14,
	'y': 0x15, 'u': 0x16, 'i': 0x17, 'o': 0x18, 'p': 0x19,
	'[': 0x1A, ']': 0x1B,
	'a': 0x1E, 's': 0x1F, 'd': 0x20, 'f': 0x21, 'g': 0x22,
	'h': 0x23, 'j': 0x24, 'k': 0x25, 'l': 0x26,
	';': 0x27, '\'': 0x28, '`': 0x29, '\\': 0x2B,
	'z': 0x2C, 'x': 0x2D, 'c': 0x2E, 'v': 0x2F, 'b': 0x30,
	'n': 0x31, 'm': 0x32, ',': 0x33, '.': 0x34, '/': 0x35,
	' ': 0x39,
}
