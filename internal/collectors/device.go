package collectors

import (
	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/models"
	"github.com/streamsense/observability/internal/registry"
)

// DeviceCollector records connectivity metrics for acquisition devices.
type DeviceCollector struct {
	connected  *registry.Handle
	dropouts   *registry.Handle
	reconnects *registry.Handle
	samples    *registry.Handle
	logger     *zap.Logger
}

// NewDeviceCollector creates the device metric instruments in the given
// registry.
func NewDeviceCollector(reg *registry.Registry, logger *zap.Logger) (*DeviceCollector, error) {
	connected, err := reg.GetOrCreate("device_connected", models.Gauge, "device_id")
	if err != nil {
		return nil, err
	}
	dropouts, err := reg.GetOrCreate("device_dropouts_total", models.Counter, "device_id")
	if err != nil {
		return nil, err
	}
	reconnects, err := reg.GetOrCreate("device_reconnects_total", models.Counter, "device_id")
	if err != nil {
		return nil, err
	}
	samples, err := reg.GetOrCreate("device_samples_total", models.Counter, "device_id", "signal_type")
	if err != nil {
		return nil, err
	}
	return &DeviceCollector{
		connected:  connected,
		dropouts:   dropouts,
		reconnects: reconnects,
		samples:    samples,
		logger:     logger,
	}, nil
}

// SetConnected marks a device as connected or disconnected.
func (c *DeviceCollector) SetConnected(deviceID string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	if err := c.connected.Set(v, deviceID); err != nil {
		c.logger.Warn("device state not recorded", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// RecordDropout counts one connection dropout for a device.
func (c *DeviceCollector) RecordDropout(deviceID string) {
	if err := c.dropouts.Add(1, deviceID); err != nil {
		c.logger.Warn("dropout not recorded", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// RecordReconnect counts one successful reconnection for a device.
func (c *DeviceCollector) RecordReconnect(deviceID string) {
	if err := c.reconnects.Add(1, deviceID); err != nil {
		c.logger.Warn("reconnect not recorded", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// RecordSamples counts samples received from a device for one signal type.
func (c *DeviceCollector) RecordSamples(deviceID, signalType string, count float64) {
	if err := c.samples.Add(count, deviceID, signalType); err != nil {
		c.logger.Warn("samples not recorded",
			zap.String("device_id", deviceID),
			zap.String("signal_type", signalType),
			zap.Error(err),
		)
	}
}
