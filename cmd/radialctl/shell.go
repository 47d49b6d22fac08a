// cmd/radialctl/shell.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/abiosoft/ishell"

	"radial-config/internal/discovery"
	"radial-config/internal/model"
	"radial-config/pkg/driver"
)

const (
	disconnectedPrompt = "[none] > "
	commandTimeout     = 10 * time.Second
	commandSeparator   = ";"
)

// Shell provides the ishell backed interactive configurator.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	app   *Application

	mu      sync.Mutex
	alerts  []model.AlertEventData
	lastErr error
}

// NewShell creates a new shell bound to app.
func NewShell(app *Application, interactive, outputJSON bool) *Shell {
	s := &Shell{
		Interactive: interactive,
		OutputJSON:  outputJSON,
		Shell:       ishell.New(),
		app:         app,
	}
	s.Shell.SetPrompt(disconnectedPrompt)
	for _, cmd := range s.commands() {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// Run processes args as commands separated by ";", or starts the
// interactive loop when there are none.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		for _, command := range splitCommands(args) {
			if err := s.Shell.Process(command...); err != nil {
				return err
			}
			if err := s.takeError(); err != nil {
				return err
			}
		}
		return nil
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return errors.New("command expected")
}

// Close stops the interactive loop.
func (s *Shell) Close() {
	s.Shell.Close()
}

// WatchEvents prints session events as they arrive.
func (s *Shell) WatchEvents(ctx context.Context, events <-chan model.SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			s.printEvent(event)
		}
	}
}

func (s *Shell) printEvent(event model.SessionEvent) {
	switch event.EventType {
	case model.EventConnected:
		s.Shell.SetPrompt(fmt.Sprintf("%v > ", event.Data["port"]))
	case model.EventDisconnected, model.EventConnectionLost:
		s.Shell.SetPrompt(disconnectedPrompt)
	case model.EventStatus:
		s.Shell.Printf("[%s] %v\n", event.Severity, event.Data["message"])
	case model.EventAlert:
		alert := model.AlertEventData{
			Title:   fmt.Sprint(event.Data["title"]),
			Message: fmt.Sprint(event.Data["message"]),
		}
		s.mu.Lock()
		s.alerts = append(s.alerts, alert)
		s.mu.Unlock()
		s.Shell.Printf("!! %s: %s (type 'ack' to dismiss)\n", alert.Title, alert.Message)
	case model.EventParameterChanged:
		s.Shell.Printf("~ %v: %v -> %v\n", event.Data["key"], event.Data["previous"], event.Data["value"])
	case model.EventConfigLoaded:
		s.Shell.Printf("Configuration loaded (firmware %v)\n", event.Data["firmware_version"])
	}
}

func (s *Shell) fail(c *ishell.Context, err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	c.Err(err)
}

func (s *Shell) takeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lastErr
	s.lastErr = nil
	return err
}

func (s *Shell) print(c *ishell.Context, v interface{}, text func() string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Print(text())
}

// mustBeConnected wraps a command that needs a live session.
func (s *Shell) mustBeConnected(fn func(c *ishell.Context, d driver.ConfigDriver)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		d, err := s.app.configService.Current()
		if err != nil {
			s.fail(c, err)
			return
		}
		fn(c, d)
	}
}

// deviceCommand runs a device round trip under the command timeout.
func (s *Shell) deviceCommand(done string, fn func(ctx context.Context, d driver.ConfigDriver) error) func(c *ishell.Context) {
	return s.mustBeConnected(func(c *ishell.Context, d driver.ConfigDriver) {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		if err := fn(ctx, d); err != nil {
			s.fail(c, err)
			return
		}
		c.Println(done)
	})
}

func (s *Shell) commands() []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name:    "ports",
			Aliases: []string{"scan", "l"},
			Help:    "[serial|usb] list attached devices",
			Func:    s.listPorts,
		},
		{
			Name:    "connect",
			Aliases: []string{"c"},
			Help:    "[PORT] enter config mode",
			Func:    s.connect,
		},
		{
			Name:    "disconnect",
			Aliases: []string{"d"},
			Help:    "leave config mode",
			Func: func(c *ishell.Context) {
				ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
				defer cancel()
				if err := s.app.configService.Disconnect(ctx); err != nil {
					s.fail(c, err)
					return
				}
				s.Shell.SetPrompt(disconnectedPrompt)
			},
		},
		{
			Name:    "show",
			Aliases: []string{"params", "p"},
			Help:    "show the parameter mirror",
			Func: s.mustBeConnected(func(c *ishell.Context, d driver.ConfigDriver) {
				params := d.Parameters()
				s.print(c, params, func() string { return formatParameters(params) })
			}),
		},
		{
			Name: "set",
			Help: "KEY VALUE update a parameter locally; save writes it to the device",
			Func: s.mustBeConnected(s.setParameter),
		},
		{
			Name: "load",
			Help: "read the configuration from the device",
			Func: s.deviceCommand("OK", func(ctx context.Context, d driver.ConfigDriver) error {
				return d.LoadSettings(ctx)
			}),
		},
		{
			Name: "save",
			Help: "write the configuration to the device",
			Func: s.deviceCommand("Saved", func(ctx context.Context, d driver.ConfigDriver) error {
				return d.SaveSettings(ctx)
			}),
		},
		{
			Name: "reset",
			Help: "restore firmware defaults and reload",
			Func: s.deviceCommand("Reset", func(ctx context.Context, d driver.ConfigDriver) error {
				return d.ResetSettings(ctx)
			}),
		},
		{
			Name:    "status",
			Aliases: []string{"st"},
			Help:    "show session state and link health",
			Func:    s.mustBeConnected(s.status),
		},
		{
			Name: "ack",
			Help: "dismiss pending alerts",
			Func: func(c *ishell.Context) {
				s.mu.Lock()
				alerts := s.alerts
				s.alerts = nil
				s.mu.Unlock()
				c.Printf("%d alert(s) dismissed\n", len(alerts))
			},
		},
	}
}

func (s *Shell) listPorts(c *ishell.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var devices []*discovery.DiscoveredDevice
	var err error
	if len(c.Args) > 0 {
		devices, err = s.app.configService.ScanByType(ctx, c.Args[0])
	} else {
		devices, err = s.app.configService.Scan(ctx)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	if devices == nil {
		devices = []*discovery.DiscoveredDevice{}
	}
	s.print(c, devices, func() string { return formatDevices(devices) })
}

func (s *Shell) connect(c *ishell.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var port string
	if len(c.Args) > 0 {
		port = c.Args[0]
	} else if s.app.config.Serial.Port == "" && s.Interactive {
		selected, err := s.selectPort(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		port = selected
	}

	d, err := s.app.configService.Connect(ctx, port)
	if err != nil {
		s.fail(c, err)
		return
	}
	info, err := d.GetDeviceInfo()
	if err != nil {
		s.fail(c, err)
		return
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", info.Port))
	c.Printf("Connected to %s (session %s)\n", info.Port, d.SessionID())
}

// selectPort asks for a choice when more than one port is attached.
// An empty result lets the service pick.
func (s *Shell) selectPort(ctx context.Context) (string, error) {
	devices, err := s.app.configService.Scan(ctx)
	if err != nil {
		return "", err
	}

	var ports []string
	for _, device := range devices {
		if device.ConnectionType == model.ConnectionTypeSerial && device.Port != "" {
			ports = append(ports, device.Port)
		}
	}
	if len(ports) <= 1 {
		return "", nil
	}
	index := s.Shell.MultiChoice(ports, "Which port to connect?")
	if index < 0 {
		return "", errors.New("no port selected")
	}
	return ports[index], nil
}

func (s *Shell) setParameter(c *ishell.Context, d driver.ConfigDriver) {
	if len(c.Args) != 2 {
		s.fail(c, errors.New("usage: set KEY VALUE"))
		return
	}
	value, err := strconv.Atoi(c.Args[1])
	if err != nil {
		s.fail(c, fmt.Errorf("invalid value %q: %w", c.Args[1], err))
		return
	}

	change, err := d.SetParameter(c.Args[0], value)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.print(c, change, func() string {
		if change.Clamped {
			return fmt.Sprintf("%s = %d (clamped from %d)\n", change.Key, change.Value, value)
		}
		return fmt.Sprintf("%s = %d\n", change.Key, change.Value)
	})
}

type statusReport struct {
	Device *driver.DeviceInfo    `json:"device"`
	Status *driver.DeviceStatus  `json:"status"`
	Health *driver.HealthMetrics `json:"health"`
}

func (s *Shell) status(c *ishell.Context, d driver.ConfigDriver) {
	info, err := d.GetDeviceInfo()
	if err != nil {
		s.fail(c, err)
		return
	}
	status, err := d.GetStatus()
	if err != nil {
		s.fail(c, err)
		return
	}
	health, err := d.GetHealthMetrics()
	if err != nil {
		s.fail(c, err)
		return
	}

	report := statusReport{Device: info, Status: status, Health: health}
	s.print(c, report, func() string { return formatStatus(report) })
}

func formatParameters(params []model.ConfigParameter) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE\tRANGE\tDESCRIPTION")
	for _, p := range params {
		fmt.Fprintf(w, "%s\t%d\t%d..%d\t%s\n", p.Key, p.Value, p.Min, p.Max, p.Label)
	}
	w.Flush()
	return buf.String()
}

func formatDevices(devices []*discovery.DiscoveredDevice) string {
	if len(devices) == 0 {
		return "No devices found\n"
	}
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPORT\tVID:PID\tPRODUCT\tSERIAL")
	for _, device := range devices {
		port := device.Port
		if port == "" {
			port = device.Location
		}
		fmt.Fprintf(w, "%s\t%s\t%s:%s\t%s\t%s\n",
			device.ConnectionType, port, device.VendorID, device.ProductID, device.Product, device.SerialNumber)
	}
	w.Flush()
	return buf.String()
}

func formatStatus(report statusReport) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Port:\t%s\n", report.Device.Port)
	fmt.Fprintf(w, "State:\t%s\n", report.Status.State)
	fmt.Fprintf(w, "Layout:\t%s\n", report.Device.Layout)
	if report.Device.FirmwareVersion != "" {
		fmt.Fprintf(w, "Firmware:\t%s\n", report.Device.FirmwareVersion)
	}
	if report.Status.PendingCommand != "" {
		fmt.Fprintf(w, "Pending:\t%s\n", report.Status.PendingCommand)
	}
	fmt.Fprintf(w, "Bytes:\t%d read, %d written\n", report.Status.BytesRead, report.Status.BytesWritten)
	fmt.Fprintf(w, "Health:\t%d (%.0f%% of %d ok, avg %s)\n",
		report.Health.HealthScore,
		report.Health.SuccessRate*100,
		report.Health.TotalOperations,
		report.Health.ResponseTime.Round(time.Millisecond),
	)
	w.Flush()
	return buf.String()
}

// splitCommands splits args on standalone ";" tokens.
func splitCommands(args []string) [][]string {
	var commands [][]string
	var current []string
	for _, arg := range args {
		if arg == commandSeparator {
			if len(current) > 0 {
				commands = append(commands, current)
			}
			current = nil
			continue
		}
		current = append(current, arg)
	}
	if len(current) > 0 {
		commands = append(commands, current)
	}
	return commands
}
