package fieldbus

import "fmt"

// Holding-register map of the pump controller. Fixed by controller firmware;
// addresses and scale factors are not configurable.
const (
	RegPumpControl     uint16 = 1  // 0=stop, 1=start
	RegPumpStatus      uint16 = 2  // 0=stopped, 1=running
	RegTemperature     uint16 = 10 // raw/10 -> degC
	RegPressure        uint16 = 11 // raw/100 -> bar
	RegFlow            uint16 = 12 // raw/10 -> m3/h
	RegStaticHead      uint16 = 13 // raw/10 -> m
	RegFrictionLosses  uint16 = 14 // raw/10 -> m
	RegSuctionDiameter uint16 = 15 // raw -> mm
	RegElevation       uint16 = 16 // raw/10 -> m
)

// The acquisition loop fetches the whole map in one transaction.
const (
	BlockStart uint16 = RegPumpControl
	BlockCount uint16 = RegElevation - RegPumpControl + 1
)

// Pump control/status register values.
const (
	PumpStop  uint16 = 0
	PumpStart uint16 = 1
)

// ProcessValues is the typed, scaled view of one register block read.
type ProcessValues struct {
	PumpCommanded     bool
	PumpRunning       bool
	TemperatureC      float64
	PressureBar       float64
	FlowM3h           float64
	StaticHeadM       float64
	FrictionLossM     float64
	SuctionDiameterMM uint16
	ElevationM        float64
}

// DecodeBlock extracts ProcessValues from a raw block read starting at
// BlockStart. Out-of-range flag registers are a ProtocolError: the register
// map no longer matches the firmware.
func DecodeBlock(regs []uint16) (ProcessValues, error) {
	if len(regs) != int(BlockCount) {
		return ProcessValues{}, &ProtocolError{
			Op:  "decode block",
			Err: fmt.Errorf("expected %d registers, got %d", BlockCount, len(regs)),
		}
	}

	at := func(addr uint16) uint16 { return regs[addr-BlockStart] }

	control := at(RegPumpControl)
	status := at(RegPumpStatus)
	if control > 1 || status > 1 {
		return ProcessValues{}, &ProtocolError{
			Op:  "decode block",
			Err: fmt.Errorf("pump flags out of range: control=%d status=%d", control, status),
		}
	}

	return ProcessValues{
		PumpCommanded:     control == PumpStart,
		PumpRunning:       status == PumpStart,
		TemperatureC:      float64(at(RegTemperature)) / 10,
		PressureBar:       float64(at(RegPressure)) / 100,
		FlowM3h:           float64(at(RegFlow)) / 10,
		StaticHeadM:       float64(at(RegStaticHead)) / 10,
		FrictionLossM:     float64(at(RegFrictionLosses)) / 10,
		SuctionDiameterMM: at(RegSuctionDiameter),
		ElevationM:        float64(at(RegElevation)) / 10,
	}, nil
}
