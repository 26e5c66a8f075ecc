package gridseis

import (
	"io"
	"math"
	"path/filepath"
	"testing"
)

// 录制两个窗口再回放，校验采样值和 EOF 行为
func TestWavRecordReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.wav")

	rec, err := NewWavRecorder(path, int(testSampleRate))
	if err != nil {
		t.Fatalf("NewWavRecorder failed: %v", err)
	}

	w1 := generateSineWindow(50.1, 0.8, 0, testWindowLen)
	w2 := generateSineWindow(50.1, 0.8, testWindowLen, testWindowLen)
	if err := rec.WriteWindow(w1); err != nil {
		t.Fatal(err)
	}
	if err := rec.WriteWindow(w2); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	replay, err := NewWavReplaySource(path, testWindowLen, int(testSampleRate))
	if err != nil {
		t.Fatalf("NewWavReplaySource failed: %v", err)
	}
	defer replay.Close()

	if replay.FullScale() != 1.0 {
		t.Errorf("Expected full scale 1.0, got %v", replay.FullScale())
	}

	for n, want := range [][]float64{w1, w2} {
		got, err := replay.ReadWindow()
		if err != nil {
			t.Fatalf("ReadWindow %d failed: %v", n, err)
		}
		if len(got) != testWindowLen {
			t.Fatalf("Window %d: expected %d samples, got %d", n, testWindowLen, len(got))
		}
		for i := range got {
			// 16-bit 量化误差 (截断 + 32767/32768 比例差)
			if math.Abs(got[i]-want[i]) > 1.0/16000 {
				t.Fatalf("Window %d sample %d: expected %v, got %v", n, i, want[i], got[i])
			}
		}
	}

	if _, err := replay.ReadWindow(); err != io.EOF {
		t.Errorf("Expected io.EOF after last window, got %v", err)
	}
}

func TestWavReplay_RateMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrongrate.wav")

	rec, err := NewWavRecorder(path, 8000)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.WriteWindow(make([]float64, 100)); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	// 回放文件的采样率必须与分析采样率一致，否则参考表对不上
	if _, err := NewWavReplaySource(path, testWindowLen, int(testSampleRate)); err == nil {
		t.Error("Expected sample-rate mismatch error")
	}
}
