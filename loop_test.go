package gridseis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
)

// sineSource 产生相位连续的合成采样流 (模拟连续采集)
type sineSource struct {
	freq   float64
	amp    float64
	cursor int
	err    error
}

func (s *sineSource) ReadWindow() ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	w := make([]float64, testWindowLen)
	for i := range w {
		t := float64(s.cursor) / testSampleRate
		w[i] = s.amp * math.Sin(2*math.Pi*s.freq*t)
		s.cursor++
	}
	return w, nil
}

func (s *sineSource) FullScale() float64 { return 1.0 }

// fakeServo 记录收到的角度指令
type fakeServo struct {
	angles []float64
}

func (f *fakeServo) SetAngle(angle float64) error {
	f.angles = append(f.angles, angle)
	return nil
}

type record struct {
	T        int64   `json:"t"`
	Freq     float64 `json:"freq"`
	Smoothed float64 `json:"smoothed"`
	Signal   float64 `json:"signal"`
	Err      string  `json:"err"`
}

func parseRecords(t *testing.T, out *bytes.Buffer) []record {
	t.Helper()
	var records []record
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("Telemetry line is not valid JSON: %q (%v)", line, err)
		}
		records = append(records, r)
	}
	return records
}

func newTestLoop(src WindowSource, servo AngleSetter, out *bytes.Buffer) *MeasurementLoop {
	cfg := DefaultConfig()
	demod := newTestDemodulator()
	tracker := NewPhaseTracker(cfg.Signal.NominalFreq, src.FullScale())
	return NewMeasurementLoop(cfg, src, demod, tracker, servo, NewRecorder(out), nil)
}

// 端到端场景: 50.1 Hz 真实信号
// 周期 1 (无基线) -> 50.0000 Hz, 90°；周期 2 -> ≈50.1 Hz, ≈60°
func TestMeasurementLoop_EndToEnd(t *testing.T) {
	src := &sineSource{freq: 50.1, amp: 1.0}
	servo := &fakeServo{}
	var out bytes.Buffer
	loop := newTestLoop(src, servo, &out)

	for i := 0; i < 2; i++ {
		if !loop.runEpoch() {
			t.Fatal("Epoch ended the loop unexpectedly")
		}
	}

	records := parseRecords(t, &out)
	if len(records) != 2 {
		t.Fatalf("Expected 2 telemetry records, got %d", len(records))
	}

	if records[0].Freq != 50.0 {
		t.Errorf("Epoch 1: expected 50.0000 Hz, got %v", records[0].Freq)
	}
	if math.Abs(records[1].Freq-50.1) > 0.002 {
		t.Errorf("Epoch 2: expected ≈50.1000 Hz, got %v", records[1].Freq)
	}

	// 平滑值: 种子 50.0，第二周期 0.3*50.1 + 0.7*50.0 = 50.03
	if math.Abs(records[1].Smoothed-50.03) > 0.002 {
		t.Errorf("Epoch 2: expected smoothed ≈50.03, got %v", records[1].Smoothed)
	}

	if len(servo.angles) != 2 {
		t.Fatalf("Expected 2 servo commands, got %d", len(servo.angles))
	}
	if servo.angles[0] != 90.0 {
		t.Errorf("Epoch 1: expected 90°, got %v", servo.angles[0])
	}
	if math.Abs(servo.angles[1]-60.0) > 0.7 {
		t.Errorf("Epoch 2: expected ≈60°, got %v", servo.angles[1])
	}
}

// 弱信号门限: 上报失败，不更新相位基线，不驱动舵机
func TestMeasurementLoop_WeakSignalGate(t *testing.T) {
	src := &sineSource{freq: 50.1, amp: 0.0001}
	servo := &fakeServo{}
	var out bytes.Buffer
	loop := newTestLoop(src, servo, &out)

	if !loop.runEpoch() {
		t.Fatal("Weak-signal epoch must not end the loop")
	}

	// 信号恢复后的第一个周期仍然是"第一次测量" (基线未被弱信号污染)
	src.amp = 1.0
	loop.runEpoch()

	records := parseRecords(t, &out)
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Err != "weak-signal" {
		t.Errorf("Expected weak-signal failure, got %+v", records[0])
	}
	if records[1].Freq != 50.0 {
		t.Errorf("Baseline should be untouched, expected nominal 50.0, got %v", records[1].Freq)
	}
	if len(servo.angles) != 1 {
		t.Errorf("Failed epoch must not command the servo, got %d commands", len(servo.angles))
	}
}

func TestMeasurementLoop_AcquisitionFailure(t *testing.T) {
	src := &sineSource{freq: 50.0, amp: 1.0, err: fmt.Errorf("%w: bus glitch", ErrShortWindow)}
	var out bytes.Buffer
	loop := newTestLoop(src, nil, &out)

	if !loop.runEpoch() {
		t.Fatal("Acquisition failure must not end the loop")
	}

	records := parseRecords(t, &out)
	if len(records) != 1 || records[0].Err != "acquisition" {
		t.Fatalf("Expected one acquisition failure record, got %+v", records)
	}
}

func TestMeasurementLoop_EndOfStream(t *testing.T) {
	src := &sineSource{err: io.EOF}
	var out bytes.Buffer
	loop := newTestLoop(src, nil, &out)

	if loop.runEpoch() {
		t.Fatal("EOF must end the loop")
	}
	if out.Len() != 0 {
		t.Errorf("EOF must not emit a failure record, got %q", out.String())
	}
}

// 上报行格式是下游契约: 固定字段名和小数位数
func TestRecorder_LineFormat(t *testing.T) {
	var out bytes.Buffer
	r := NewRecorder(&out)

	r.Record(1234, 50.05, 50.0149999, 0.4567)
	want := "{\"t\":1234,\"freq\":50.0500,\"smoothed\":50.0150,\"signal\":0.457}\n"
	if out.String() != want {
		t.Errorf("Record format drifted:\n got %q\nwant %q", out.String(), want)
	}

	out.Reset()
	r.RecordFailure(99, "weak-signal")
	want = "{\"t\":99,\"err\":\"weak-signal\"}\n"
	if out.String() != want {
		t.Errorf("Failure format drifted:\n got %q\nwant %q", out.String(), want)
	}
}
