package fieldbus

import (
	"errors"
	"testing"
)

func validBlock() []uint16 {
	regs := make([]uint16, BlockCount)
	set := func(addr, v uint16) { regs[addr-BlockStart] = v }
	set(RegPumpControl, 1)
	set(RegPumpStatus, 1)
	set(RegTemperature, 250) // 25.0 C
	set(RegPressure, 300)    // 3.00 bar
	set(RegFlow, 4800)       // 480.0 m3/h
	set(RegStaticHead, 20)   // 2.0 m
	set(RegFrictionLosses, 5)
	set(RegSuctionDiameter, 150)
	set(RegElevation, 10)
	return regs
}

func TestDecodeBlockScaling(t *testing.T) {
	pv, err := DecodeBlock(validBlock())
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}

	if !pv.PumpRunning || !pv.PumpCommanded {
		t.Fatalf("pump flags wrong: %+v", pv)
	}
	if pv.TemperatureC != 25.0 {
		t.Fatalf("temperature=%v want 25.0", pv.TemperatureC)
	}
	if pv.PressureBar != 3.0 {
		t.Fatalf("pressure=%v want 3.0", pv.PressureBar)
	}
	if pv.FlowM3h != 480.0 {
		t.Fatalf("flow=%v want 480.0", pv.FlowM3h)
	}
	if pv.StaticHeadM != 2.0 || pv.FrictionLossM != 0.5 {
		t.Fatalf("heads wrong: %+v", pv)
	}
	if pv.SuctionDiameterMM != 150 || pv.ElevationM != 1.0 {
		t.Fatalf("diameter/elevation wrong: %+v", pv)
	}
}

func TestDecodeBlockWrongLength(t *testing.T) {
	_, err := DecodeBlock(make([]uint16, 3))
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestDecodeBlockRejectsBadFlags(t *testing.T) {
	regs := validBlock()
	regs[RegPumpStatus-BlockStart] = 7
	_, err := DecodeBlock(regs)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError for out-of-range status, got %v", err)
	}
}
