package gridseis

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Pololu Maestro Compact 协议命令字
const maestroSetTarget = 0x84

// SerialPort 定义串口操作接口，方便测试 Mock
type SerialPort interface {
	io.ReadWriteCloser
}

// ServoClient 通过串口上的 Maestro 舵机控制器驱动表盘指针
// SetAngle 是幂等的，控制器保持位置直到下一次指令
type ServoClient struct {
	Port       string
	BaudRate   int
	Channel    byte
	MinPulseUs int // 0° 对应的脉宽 (µs)
	MaxPulseUs int // 180° 对应的脉宽 (µs)

	conn SerialPort
}

// NewServoClient 创建舵机客户端
func NewServoClient(port string, baud, channel, minPulseUs, maxPulseUs int) *ServoClient {
	return &ServoClient{
		Port:       port,
		BaudRate:   baud,
		Channel:    byte(channel),
		MinPulseUs: minPulseUs,
		MaxPulseUs: maxPulseUs,
	}
}

// Open 打开串口连接
func (c *ServoClient) Open() error {
	config := &serial.Config{
		Name:        c.Port,
		Baud:        c.BaudRate,
		ReadTimeout: time.Millisecond * 500,
	}
	s, err := serial.OpenPort(config)
	if err != nil {
		return err
	}
	c.conn = s
	return nil
}

// Close 关闭串口连接
func (c *ServoClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetAngle 设置舵机角度 (0-180°)，越界自动截断
// 构造帧: 0x84 [Channel] [Target 低7位] [Target 高7位]
// Target 单位是 0.25µs (4000 = 1ms 脉宽)
func (c *ServoClient) SetAngle(angle float64) error {
	if c.conn == nil {
		return fmt.Errorf("connection not open")
	}
	if angle < 0 {
		angle = 0
	}
	if angle > 180 {
		angle = 180
	}

	pulseUs := float64(c.MinPulseUs) + angle/180.0*float64(c.MaxPulseUs-c.MinPulseUs)
	target := int(pulseUs * 4)

	frame := []byte{maestroSetTarget, c.Channel, byte(target & 0x7F), byte((target >> 7) & 0x7F)}
	_, err := c.conn.Write(frame)
	return err
}
