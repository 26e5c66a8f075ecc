package gridseis

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WavReplaySource 从 16-bit PCM 单声道 WAV 回放原始采样流
// 文件采样率必须等于分析采样率，这样回放和实采共用同一套参考表
type WavReplaySource struct {
	file      *os.File
	windowLen int
	dataLeft  int
}

// NewWavReplaySource 打开回放文件并校验格式
func NewWavReplaySource(filename string, windowLen, sampleRate int) (*WavReplaySource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	riff := make([]byte, 12)
	if _, err := io.ReadFull(f, riff); err != nil {
		f.Close()
		return nil, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		f.Close()
		return nil, fmt.Errorf("invalid wav file")
	}

	var fileRate, channels, bits, dataSize int
	var dataStart int64
	foundFmt, foundData := false, false

	// 顺序扫描 chunk，跳过不认识的；记下 data 的位置，扫描完回跳
	for !(foundFmt && foundData) {
		header := make([]byte, 8)
		if _, err := io.ReadFull(f, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("invalid wav file: missing fmt or data chunk")
		}
		chunkID := string(header[0:4])
		chunkSize := int(binary.LittleEndian.Uint32(header[4:8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				f.Close()
				return nil, fmt.Errorf("fmt chunk too small")
			}
			fmtData := make([]byte, chunkSize+chunkSize%2)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				f.Close()
				return nil, err
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			fileRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bits = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true
		case "data":
			dataSize = chunkSize
			pos, err := f.Seek(0, io.SeekCurrent)
			if err != nil {
				f.Close()
				return nil, err
			}
			dataStart = pos
			foundData = true
			if !foundFmt {
				if _, err := f.Seek(int64(chunkSize+chunkSize%2), io.SeekCurrent); err != nil {
					f.Close()
					return nil, err
				}
			}
		default:
			if _, err := f.Seek(int64(chunkSize+chunkSize%2), io.SeekCurrent); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if channels != 1 || bits != 16 {
		f.Close()
		return nil, fmt.Errorf("only 16-bit mono wav supported, got %d-bit %d-channel", bits, channels)
	}
	if fileRate != sampleRate {
		f.Close()
		return nil, fmt.Errorf("wav sample rate %d does not match analysis rate %d", fileRate, sampleRate)
	}

	// 回到 data 开头开始读采样
	if _, err := f.Seek(dataStart, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return &WavReplaySource{
		file:      f,
		windowLen: windowLen,
		dataLeft:  dataSize,
	}, nil
}

// ReadWindow 读取一个窗口的采样，归一化到 ±1.0
// 数据耗尽时返回 io.EOF，测量循环据此结束回放
func (r *WavReplaySource) ReadWindow() ([]float64, error) {
	if r.dataLeft < r.windowLen*2 {
		return nil, io.EOF
	}

	buf := make([]byte, r.windowLen*2)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return nil, err
	}
	r.dataLeft -= len(buf)

	window := make([]float64, r.windowLen)
	for i := range window {
		v := int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
		window[i] = float64(v) / 32768.0
	}
	return window, nil
}

// FullScale 回放数据归一化到 ±1.0
func (r *WavReplaySource) FullScale() float64 {
	return 1.0
}

// Close 关闭回放文件
func (r *WavReplaySource) Close() error {
	return r.file.Close()
}

// WavRecorder 把采集到的原始采样流写进 16-bit PCM 单声道 WAV
// 用于离线分析和回放测试
type WavRecorder struct {
	file       *os.File
	sampleRate int
	dataSize   int
}

// NewWavRecorder 创建录制器，文件头在 Close 时回写
func NewWavRecorder(filename string, sampleRate int) (*WavRecorder, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	// 44 字节占位头
	if _, err := f.Write(make([]byte, 44)); err != nil {
		f.Close()
		return nil, err
	}
	return &WavRecorder{file: f, sampleRate: sampleRate}, nil
}

// WriteWindow 写入一个窗口的采样 (±1.0，越界限幅)
func (w *WavRecorder) WriteWindow(window []float64) error {
	buf := make([]byte, len(window)*2)
	for i, s := range window {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}

	n, err := w.file.Write(buf)
	if err != nil {
		return err
	}
	w.dataSize += n
	return nil
}

// Close 回写 WAV 头并关闭文件
func (w *WavRecorder) Close() error {
	header := make([]byte, 44)

	copy(header[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(header[4:], uint32(36+w.dataSize))
	copy(header[8:], []byte("WAVE"))

	copy(header[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], 1) // Mono
	binary.LittleEndian.PutUint32(header[24:], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(w.sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:], 2)
	binary.LittleEndian.PutUint16(header[34:], 16)

	copy(header[36:], []byte("data"))
	binary.LittleEndian.PutUint32(header[40:], uint32(w.dataSize))

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(header); err != nil {
		return err
	}
	return w.file.Close()
}
