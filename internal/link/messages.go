package link

import (
	"encoding/binary"
	"math"
)

// Message is the closed set of typed link messages the agent consumes.
// Decoding produces one of Heartbeat, SysStatus, GPSRawInt, or Attitude;
// unrecognized wire traffic never surfaces here.
type Message interface {
	Type() string
}

// Heartbeat announces a live autopilot. It carries mode flags the agent
// does not interpret; its presence alone completes the link handshake.
type Heartbeat struct {
	CustomMode   uint32
	VehicleType  uint8
	Autopilot    uint8
	BaseMode     uint8
	SystemStatus uint8
}

func (Heartbeat) Type() string { return "HEARTBEAT" }

// SysStatus carries battery readings, already scaled to volts, amps,
// and percent remaining.
type SysStatus struct {
	Voltage   float64 // V
	Current   float64 // A
	Remaining int     // %
}

func (SysStatus) Type() string { return "SYS_STATUS" }

// GPSRawInt carries the position fix, scaled to degrees and meters.
type GPSRawInt struct {
	Lat     float64 // degrees
	Lon     float64 // degrees
	Alt     float64 // meters above MSL
	FixType int
}

func (GPSRawInt) Type() string { return "GPS_RAW_INT" }

// Attitude carries vehicle orientation in radians.
type Attitude struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

func (Attitude) Type() string { return "ATTITUDE" }

// decodeMessage converts a checksum-verified frame into a typed message.
// A short payload or an id outside the consumed set yields (nil, false).
func decodeMessage(f frame) (Message, bool) {
	p := f.payload
	le := binary.LittleEndian
	switch f.messageID {
	case msgIDHeartbeat:
		if len(p) < 9 {
			return nil, false
		}
		return Heartbeat{
			CustomMode:   le.Uint32(p[0:4]),
			VehicleType:  p[4],
			Autopilot:    p[5],
			BaseMode:     p[6],
			SystemStatus: p[7],
		}, true
	case msgIDSysStatus:
		if len(p) < 31 {
			return nil, false
		}
		// wire units: millivolts, centiamps, percent
		return SysStatus{
			Voltage:   float64(le.Uint16(p[14:16])) / 1000,
			Current:   float64(int16(le.Uint16(p[16:18]))) / 100,
			Remaining: int(int8(p[30])),
		}, true
	case msgIDGPSRawInt:
		if len(p) < 30 {
			return nil, false
		}
		// wire units: 1e-7 degrees, millimeters
		return GPSRawInt{
			Lat:     float64(int32(le.Uint32(p[8:12]))) / 1e7,
			Lon:     float64(int32(le.Uint32(p[12:16]))) / 1e7,
			Alt:     float64(int32(le.Uint32(p[16:20]))) / 1000,
			FixType: int(p[28]),
		}, true
	case msgIDAttitude:
		if len(p) < 28 {
			return nil, false
		}
		return Attitude{
			Roll:  float64(math.Float32frombits(le.Uint32(p[4:8]))),
			Pitch: float64(math.Float32frombits(le.Uint32(p[8:12]))),
			Yaw:   float64(math.Float32frombits(le.Uint32(p[12:16]))),
		}, true
	}
	return nil, false
}

// Encoders for the wire payloads. The agent itself only emits heartbeats;
// the rest exist for the bench harness that stands in for an autopilot.

func encodeHeartbeat(h Heartbeat) []byte {
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p[0:4], h.CustomMode)
	p[4] = h.VehicleType
	p[5] = h.Autopilot
	p[6] = h.BaseMode
	p[7] = h.SystemStatus
	p[8] = 3 // protocol version
	return p
}

func encodeSysStatus(s SysStatus) []byte {
	p := make([]byte, 31)
	le := binary.LittleEndian
	le.PutUint16(p[14:16], uint16(math.Round(s.Voltage*1000)))
	le.PutUint16(p[16:18], uint16(int16(math.Round(s.Current*100))))
	p[30] = byte(int8(s.Remaining))
	return p
}

func encodeGPSRawInt(g GPSRawInt) []byte {
	p := make([]byte, 30)
	le := binary.LittleEndian
	le.PutUint32(p[8:12], uint32(int32(math.Round(g.Lat*1e7))))
	le.PutUint32(p[12:16], uint32(int32(math.Round(g.Lon*1e7))))
	le.PutUint32(p[16:20], uint32(int32(math.Round(g.Alt*1000))))
	p[28] = byte(g.FixType)
	return p
}

func encodeAttitude(a Attitude) []byte {
	p := make([]byte, 28)
	le := binary.LittleEndian
	le.PutUint32(p[4:8], math.Float32bits(float32(a.Roll)))
	le.PutUint32(p[8:12], math.Float32bits(float32(a.Pitch)))
	le.PutUint32(p[12:16], math.Float32bits(float32(a.Yaw)))
	return p
}

// EncodeMessage renders a typed message as a wire frame from the given
// sender identity.
func EncodeMessage(msg Message, seq, systemID, compID uint8) ([]byte, error) {
	var id uint8
	var payload []byte
	switch m := msg.(type) {
	case Heartbeat:
		id, payload = msgIDHeartbeat, encodeHeartbeat(m)
	case SysStatus:
		id, payload = msgIDSysStatus, encodeSysStatus(m)
	case GPSRawInt:
		id, payload = msgIDGPSRawInt, encodeGPSRawInt(m)
	case Attitude:
		id, payload = msgIDAttitude, encodeAttitude(m)
	}
	return encodeFrame(frame{seq: seq, systemID: systemID, compID: compID, messageID: id, payload: payload})
}
