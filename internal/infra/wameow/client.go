package wameow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

const (
	statusDisconnected = "disconnected"
	statusConnecting   = "connecting"
	statusConnected    = "connected"
)

// Client wraps a single whatsmeow client bound to one named instance. It
// owns the QR pairing loop and reports connection state changes back to the
// instance repository.
type Client struct {
	instance  string
	wa        *whatsmeow.Client
	instances ports.InstanceRepository
	qrGen     *QRCodeGenerator
	logger    *logger.Logger

	mu     sync.RWMutex
	status string

	qrState qrState

	ctx    context.Context
	cancel context.CancelFunc
}

type qrState struct {
	mu         sync.RWMutex
	code       string
	codeBase64 string
	expiresAt  time.Time
	loopActive bool
	stop       chan bool
}

func NewClient(
	instance string,
	container *sqlstore.Container,
	instances ports.InstanceRepository,
	log *logger.Logger,
) (*Client, error) {
	if err := validateInstanceName(instance); err != nil {
		return nil, err
	}

	deviceStore := deviceStoreFor(instance, instances, container, log)
	if deviceStore == nil {
		return nil, fmt.Errorf("failed to create device store for instance %s", instance)
	}

	wa := whatsmeow.NewClient(deviceStore, NewWameowLogger(log))
	if wa == nil {
		return nil, fmt.Errorf("whatsmeow.NewClient returned nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		instance:  instance,
		wa:        wa,
		instances: instances,
		qrGen:     NewQRCodeGenerator(log),
		logger:    log,
		status:    statusDisconnected,
		qrState: qrState{
			stop: make(chan bool, 1),
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// deviceStoreFor re-attaches to the device the instance paired with on a
// previous run, or hands out a fresh device for QR pairing.
func deviceStoreFor(
	instance string,
	instances ports.InstanceRepository,
	container *sqlstore.Container,
	log *logger.Logger,
) *store.Device {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := instances.GetByName(ctx, instance)
	if err == nil && rec.DeviceJID != nil && *rec.DeviceJID != "" {
		jid, parseErr := types.ParseJID(*rec.DeviceJID)
		if parseErr == nil {
			deviceStore, getErr := container.GetDevice(ctx, jid)
			if getErr == nil && deviceStore != nil {
				log.InfoWithFields("Loaded existing device store", map[string]interface{}{
					"instance":   instance,
					"device_jid": *rec.DeviceJID,
				})
				return deviceStore
			}
			log.WarnWithFields("Stored device not found, pairing a new one", map[string]interface{}{
				"instance":   instance,
				"device_jid": *rec.DeviceJID,
			})
		}
	}

	return container.NewDevice()
}

func (c *Client) Connect() error {
	c.logger.InfoWithFields("Starting connection process", map[string]interface{}{
		"instance": c.instance,
	})

	c.stopQRLoop()

	if c.wa.IsConnected() {
		c.wa.Disconnect()
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.setStatus(statusConnecting)
	go c.startClientLoop()

	return nil
}

func (c *Client) Disconnect() error {
	c.logger.InfoWithFields("Disconnecting client", map[string]interface{}{
		"instance": c.instance,
	})

	c.stopQRLoop()

	if c.wa.IsConnected() {
		c.wa.Disconnect()
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.setStatus(statusDisconnected)
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	c.logger.InfoWithFields("Logging out instance", map[string]interface{}{
		"instance": c.instance,
	})

	if err := c.wa.Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	if c.wa.IsConnected() {
		c.wa.Disconnect()
	}

	c.setStatus(statusDisconnected)
	return nil
}

func (c *Client) IsConnected() bool {
	return c.wa.IsConnected()
}

func (c *Client) IsLoggedIn() bool {
	return c.wa.IsLoggedIn()
}

func (c *Client) Status() *ports.InstanceStatus {
	status := &ports.InstanceStatus{
		Instance:  c.instance,
		Connected: c.wa.IsConnected(),
		LoggedIn:  c.wa.IsLoggedIn(),
	}
	if c.wa.Store.ID != nil {
		status.JID = c.wa.Store.ID.String()
	}
	return status
}

func (c *Client) QRCode() (*ports.QRCodeResult, error) {
	c.qrState.mu.RLock()
	defer c.qrState.mu.RUnlock()

	if c.qrState.code == "" {
		return nil, fmt.Errorf("no QR code available for instance %s", c.instance)
	}

	return &ports.QRCodeResult{
		Code:      c.qrState.code,
		PNGBase64: c.qrState.codeBase64,
		ExpiresAt: c.qrState.expiresAt,
	}, nil
}

func (c *Client) AddEventHandler(handler whatsmeow.EventHandler) uint32 {
	return c.wa.AddEventHandler(handler)
}

func (c *Client) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	c.logger.InfoWithFields("Instance status updated", map[string]interface{}{
		"instance": c.instance,
		"status":   status,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch status {
	case statusConnected:
		if err := c.instances.SetConnected(ctx, c.instance, true); err != nil {
			c.logger.WarnWithFields("Failed to persist connection state", map[string]interface{}{
				"instance": c.instance,
				"error":    err.Error(),
			})
		}
	case statusDisconnected:
		if err := c.instances.SetConnected(ctx, c.instance, false); err != nil {
			c.logger.WarnWithFields("Failed to persist connection state", map[string]interface{}{
				"instance": c.instance,
				"error":    err.Error(),
			})
		}
	}
}

func (c *Client) startClientLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorWithFields("Client loop panic", map[string]interface{}{
				"instance": c.instance,
				"error":    r,
			})
		}
	}()

	if c.wa.Store.ID == nil {
		c.logger.InfoWithFields("Device not registered, starting QR pairing", map[string]interface{}{
			"instance": c.instance,
		})
		c.handleNewDeviceRegistration()
	} else {
		c.handleExistingDeviceConnection()
	}
}

func (c *Client) handleNewDeviceRegistration() {
	qrChan, err := c.wa.GetQRChannel(context.Background())
	if err != nil {
		c.logger.ErrorWithFields("Failed to get QR channel", map[string]interface{}{
			"instance": c.instance,
			"error":    err.Error(),
		})
		c.setStatus(statusDisconnected)
		return
	}

	if err := c.wa.Connect(); err != nil {
		c.logger.ErrorWithFields("Failed to connect client", map[string]interface{}{
			"instance": c.instance,
			"error":    err.Error(),
		})
		c.setStatus(statusDisconnected)
		return
	}

	c.handleQRLoop(qrChan)
}

func (c *Client) handleExistingDeviceConnection() {
	if err := c.wa.Connect(); err != nil {
		c.logger.ErrorWithFields("Failed to connect existing device", map[string]interface{}{
			"instance": c.instance,
			"error":    err.Error(),
		})
		c.setStatus(statusDisconnected)
		return
	}

	time.Sleep(2 * time.Second)

	if c.wa.IsConnected() {
		c.setStatus(statusConnected)
	} else {
		c.logger.WarnWithFields("Connection attempt failed", map[string]interface{}{
			"instance": c.instance,
		})
		c.setStatus(statusDisconnected)
	}
}

func (c *Client) handleQRLoop(qrChan <-chan whatsmeow.QRChannelItem) {
	c.qrState.mu.Lock()
	c.qrState.loopActive = true
	c.qrState.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorWithFields("QR loop panic", map[string]interface{}{
				"instance": c.instance,
				"error":    r,
			})
		}
		c.qrState.mu.Lock()
		c.qrState.loopActive = false
		c.qrState.mu.Unlock()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-c.qrState.stop:
			return

		case evt, ok := <-qrChan:
			if !ok {
				c.setStatus(statusDisconnected)
				return
			}
			c.handleQREvent(evt)
		}
	}
}

func (c *Client) handleQREvent(evt whatsmeow.QRChannelItem) {
	switch evt.Event {
	case "code":
		c.qrState.mu.RLock()
		currentCode := c.qrState.code
		c.qrState.mu.RUnlock()

		if currentCode == evt.Code {
			return
		}

		c.updateQRCode(evt.Code, evt.Timeout)
		c.setStatus(statusConnecting)
		c.qrGen.DisplayQRCodeInTerminal(evt.Code, c.instance)

	case "success":
		c.logger.InfoWithFields("QR code scanned successfully", map[string]interface{}{
			"instance": c.instance,
		})
		c.clearQRCode()
		c.setStatus(statusConnected)

	case "timeout":
		c.logger.WarnWithFields("QR code timeout", map[string]interface{}{
			"instance": c.instance,
		})
		c.clearQRCode()
		c.setStatus(statusDisconnected)

	default:
		c.logger.InfoWithFields("QR event", map[string]interface{}{
			"instance": c.instance,
			"event":    evt.Event,
		})
	}
}

func (c *Client) updateQRCode(code string, timeout time.Duration) {
	c.qrState.mu.Lock()
	defer c.qrState.mu.Unlock()

	c.qrState.code = code
	c.qrState.codeBase64 = c.qrGen.GenerateQRCodeImage(code)
	c.qrState.expiresAt = time.Now().Add(timeout)
}

func (c *Client) clearQRCode() {
	c.qrState.mu.Lock()
	c.qrState.code = ""
	c.qrState.codeBase64 = ""
	c.qrState.expiresAt = time.Time{}
	c.qrState.mu.Unlock()

	c.qrGen.Reset()
}

func (c *Client) stopQRLoop() {
	c.qrState.mu.RLock()
	isActive := c.qrState.loopActive
	c.qrState.mu.RUnlock()

	if !isActive {
		return
	}

	select {
	case c.qrState.stop <- true:
	default:
	}
	time.Sleep(100 * time.Millisecond)
}
