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

package emulator

import (
	"flag"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/spf13/afero"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/cmos"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/console"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/himem"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/keyboard"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/pic"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/pit"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/ram"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/rom"
	"github.com/andreas-jonsson/virtual286/emulator/processor"
	"github.com/andreas-jonsson/virtual286/emulator/processor/cpu"
)

var biosImage = "bios/at286.bin"

var limitMIPS float64

func init() {
	if p, ok := os.LookupEnv("V286_DEFAULT_BIOS_PATH"); ok {
		biosImage = p
	}

	flag.Float64Var(&limitMIPS, "mips", 0, "Limit CPU speed")
	flag.StringVar(&biosImage, "bios", biosImage, "Path to BIOS image")
}

// Start builds the machine and runs the outer execution loop until the
// console requests shutdown.
func Start() {
	fs := afero.NewOsFs()
	if ok, _ := afero.Exists(fs, biosImage); !ok {
		log.Printf("no BIOS image at %s", biosImage)
		return
	}

	kbc := &keyboard.Device{}
	term := &console.Device{Keyboard: kbc}

	peripherals := []peripheral.Peripheral{
		&ram.Device{}, // needs to go first since it maps the full address space
		&rom.Device{
			RomName: "BIOS",
			Base:    memory.NewPointer(0xF000, 0),
			FS:      fs,
			Path:    biosImage,
		},
		&pic.Device{},  // cascaded interrupt controllers
		&pit.Device{},  // interval timer
		kbc,            // keyboard controller, A20 gate, reset line
		&cmos.Device{}, // real time clock
		term,           // text console
		&himem.Device{},
	}

	p := cpu.NewCPU(peripherals)
	defer p.Close()
	p.Reset()

	doLimit := limitMIPS
	if doLimit == 0 {
		doLimit = 0.33
	}
	limitSpeed := 1000000000 / int64(1000000*doLimit)

	for !term.ShutdownRequested() {
		var cycles int64
		t := time.Now().UnixNano()

	step:
		c, err := p.Step()
		if err != nil && err != processor.ErrCPUHalt {
			log.Print(err)
			return
		}
		cycles += int64(c)

	wait:
		if n := time.Now().UnixNano() - t; n <= 0 {
			runtime.Gosched()
			goto step
		} else if n < limitSpeed*cycles {
			goto wait
		}
	}
}
