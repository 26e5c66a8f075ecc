package gridseis

import (
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// AudioSource 用声卡线路输入拾取 50Hz 工频嗡声
// 设备按 CaptureRate 采集，经巴特沃斯低通抗混叠后整数倍抽取到分析采样率，
// 在音频回调里攒满窗口后投递到通道，ReadWindow 从通道取
type AudioSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	decim   int
	lpf     *ButterworthFilter
	pending []float64
	skip    int // 抽取相位计数

	windows   chan []float64
	windowLen int
	timeout   time.Duration
}

// NewAudioSource 创建声卡采集源
// captureRate 必须是 analysisRate 的整数倍
func NewAudioSource(captureRate int, analysisRate float64, windowLen int, deviceName string) (*AudioSource, error) {
	decim := int(float64(captureRate) / analysisRate)
	if decim < 1 || float64(decim)*analysisRate != float64(captureRate) {
		return nil, fmt.Errorf("capture rate %d is not an integer multiple of analysis rate %g", captureRate, analysisRate)
	}

	as := &AudioSource{
		decim: decim,
		// 截止频率取分析 Nyquist 的 80%，4 阶足够压住折叠分量
		lpf:       NewButterworthLowpass(4, float64(captureRate), analysisRate*0.4),
		pending:   make([]float64, 0, windowLen),
		windows:   make(chan []float64, 4),
		windowLen: windowLen,
		// 一个窗口的时长乘 3: 超过它说明采集停摆了
		timeout: 3 * time.Duration(float64(windowLen)/analysisRate*float64(time.Second)),
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %v", err)
	}
	as.ctx = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(captureRate)
	deviceConfig.Alsa.NoMMap = 1

	if deviceName != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(deviceName)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					fmt.Printf("Selected Audio Device: %s\n", info.Name())
					break
				}
			}
		}
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if len(pInputSamples) == 0 {
			return
		}
		samples := unsafe.Slice((*float32)(unsafe.Pointer(&pInputSamples[0])), int(framecount))
		as.consume(samples)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init device: %v", err)
	}
	as.device = device

	fmt.Printf("Audio Device Initialized. Rate: %d Hz (decimate /%d -> %g Hz)\n",
		device.SampleRate(), decim, analysisRate)

	return as, nil
}

// consume 在音频回调里运行: 滤波、抽取、攒窗口
func (as *AudioSource) consume(samples []float32) {
	for _, s := range samples {
		filtered := as.lpf.Process(float64(s))

		as.skip++
		if as.skip < as.decim {
			continue
		}
		as.skip = 0

		as.pending = append(as.pending, filtered)
		if len(as.pending) == as.windowLen {
			window := as.pending
			as.pending = make([]float64, 0, as.windowLen)

			select {
			case as.windows <- window:
			default:
				// 消费侧落后，整窗丢弃，绝不阻塞音频回调
			}
		}
	}
}

// ReadWindow 取下一个完整窗口，采集停摆时报错
func (as *AudioSource) ReadWindow() ([]float64, error) {
	select {
	case w := <-as.windows:
		return w, nil
	case <-time.After(as.timeout):
		return nil, fmt.Errorf("%w: audio capture stalled", ErrShortWindow)
	}
}

// FullScale 声卡采样已经归一化到 ±1.0
func (as *AudioSource) FullScale() float64 {
	return 1.0
}

// Start 启动音频捕获
func (as *AudioSource) Start() error {
	if as.device == nil {
		return fmt.Errorf("device not initialized")
	}
	return as.device.Start()
}

// Stop 停止音频捕获并释放资源
func (as *AudioSource) Stop() {
	if as.device != nil {
		as.device.Uninit()
		as.device = nil
	}
	if as.ctx != nil {
		_ = as.ctx.Uninit()
		as.ctx.Free()
		as.ctx = nil
	}
}
