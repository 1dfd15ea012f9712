// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"testing"
	"time"

	"github.com/gviegas/rhi/driver"
)

func TestCmdPool(t *testing.T) {
	checkDevice(t)
	for _, single := range [...]bool{false, true} {
		gp, err := tDrv.NewCmdPool(single)
		if err != nil {
			t.Errorf("tDrv.NewCmdPool(%t)\nhave %v\nwant nil", single, err)
			continue
		}
		p := gp.(*cmdPool)
		if x := p.CanResetSingle(); x != single {
			t.Errorf("p.CanResetSingle()\nhave %t\nwant %t", x, single)
		}
		var cbs []driver.CmdBuffer
		for range 3 {
			cb, err := p.NewCmdBuffer()
			if err != nil {
				t.Errorf("p.NewCmdBuffer()\nhave %v\nwant nil", err)
				continue
			}
			if err := cb.Begin(); err != nil {
				t.Errorf("cb.Begin()\nhave %v\nwant nil", err)
			}
			if err := cb.End(); err != nil {
				t.Errorf("cb.End()\nhave %v\nwant nil", err)
			}
			cbs = append(cbs, cb)
		}
		if len(p.bufs) != len(cbs) {
			t.Errorf("p.NewCmdBuffer: len(p.bufs)\nhave %d\nwant %d", len(p.bufs), len(cbs))
		}
		if single {
			if err := cbs[0].Reset(); err != nil {
				t.Errorf("cb.Reset()\nhave %v\nwant nil", err)
			}
			p.Free(cbs[0])
			if len(p.bufs) != len(cbs)-1 {
				t.Errorf("p.Free: len(p.bufs)\nhave %d\nwant %d", len(p.bufs), len(cbs)-1)
			}
		} else if err := cbs[0].Reset(); err == nil {
			t.Error("cb.Reset()\nhave nil\nwant non-nil (pool cannot reset single)")
		}
		if err := p.Reset(); err != nil {
			t.Errorf("p.Reset()\nhave %v\nwant nil", err)
		}
		if err := cbs[1].End(); err == nil {
			t.Error("cb.End() after p.Reset()\nhave nil\nwant non-nil")
		}
		p.Destroy()
		if p.d != nil || p.bufs != nil {
			t.Errorf("p.Destroy(): p\nhave %+v\nwant cmdPool{}", p)
		}
	}
}

// TestCmdCopy fills a buffer, copies it to another and
// checks the result from the host.
func TestCmdCopy(t *testing.T) {
	checkDevice(t)
	const size = 4096
	src, err := tDrv.NewBuffer(size, true, driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		t.Fatalf("tDrv.NewBuffer\nhave %v\nwant nil", err)
	}
	defer src.Destroy()
	dst, err := tDrv.NewBuffer(size, true, driver.UCopyDst)
	if err != nil {
		t.Fatalf("tDrv.NewBuffer\nhave %v\nwant nil", err)
	}
	defer dst.Destroy()
	p, err := tDrv.NewCmdPool(false)
	if err != nil {
		t.Fatalf("tDrv.NewCmdPool\nhave %v\nwant nil", err)
	}
	defer p.Destroy()
	cb, err := p.NewCmdBuffer()
	if err != nil {
		t.Fatalf("p.NewCmdBuffer\nhave %v\nwant nil", err)
	}
	fen, err := tDrv.NewFence(false)
	if err != nil {
		t.Fatalf("tDrv.NewFence\nhave %v\nwant nil", err)
	}
	defer fen.Destroy()

	if err := cb.Begin(); err != nil {
		t.Fatalf("cb.Begin()\nhave %v\nwant nil", err)
	}
	cb.BeginBlit(false)
	cb.Fill(src, 0, 0x7c, size/2)
	cb.Fill(src, size/2, 0x01, size/2)
	cb.EndBlit()
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SCopy,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.ACopyRead,
	}})
	cb.BeginBlit(true)
	cb.CopyBuffer(&driver.BufferCopy{From: src, To: dst, Size: size})
	cb.EndBlit()
	if err := cb.End(); err != nil {
		t.Fatalf("cb.End()\nhave %v\nwant nil", err)
	}
	if err := tDrv.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: fen}); err != nil {
		t.Fatalf("tDrv.Submit\nhave %v\nwant nil", err)
	}
	if err := fen.Wait(5 * time.Second); err != nil {
		t.Fatalf("fen.Wait\nhave %v\nwant nil", err)
	}
	p2 := dst.Bytes()
	for i, x := range p2[:size] {
		want := byte(0x7c)
		if i >= size/2 {
			want = 0x01
		}
		if x != want {
			t.Fatalf("dst.Bytes()[%d]\nhave %#x\nwant %#x", i, x, want)
		}
	}
	if err := tDrv.WaitIdle(); err != nil {
		t.Errorf("tDrv.WaitIdle()\nhave %v\nwant nil", err)
	}
}

func TestSubmitEmpty(t *testing.T) {
	checkDevice(t)
	fen, err := tDrv.NewFence(false)
	if err != nil {
		t.Fatalf("tDrv.NewFence\nhave %v\nwant nil", err)
	}
	defer fen.Destroy()
	if err := tDrv.Submit(&driver.Submission{Fence: fen}); err != nil {
		t.Fatalf("tDrv.Submit\nhave %v\nwant nil", err)
	}
	if err := fen.Wait(5 * time.Second); err != nil {
		t.Errorf("fen.Wait\nhave %v\nwant nil", err)
	}
}
