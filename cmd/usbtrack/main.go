package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/kennygrant/sanitize"
	"k8s.io/klog/v2"

	"github.com/usbtrack/usbtrack"
	"github.com/usbtrack/usbtrack/internal/stream"
)

func main() {
	flags := initFlags()

	ctx, err := usbtrack.New()
	if err != nil {
		klog.Fatalf("failed to open usb context: %v", err)
	}
	defer ctx.Close()

	listDevices(ctx)

	if flags.config.SnapshotDir != "" {
		if err := writeSnapshots(ctx, flags.config.SnapshotDir); err != nil {
			klog.Fatalf("failed to write snapshots: %v", err)
		}
	}

	if !flags.config.Monitor {
		return
	}

	appContext, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	events, unsubscribe := ctx.SubscribeFiltered(16, flags.config.filter)
	defer unsubscribe()

	go func() {
		defer appCancel()
		if err := ctx.Serve(appContext); err != nil {
			klog.Errorf("monitor stopped: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			printEvent(ctx, ev)
		case sig := <-sigs:
			klog.Infof("received signal %q, shutting down", sig.String())
			return
		case <-appContext.Done():
			return
		}
	}
}

func listDevices(ctx *usbtrack.Context) {
	for _, id := range ctx.ConnectedDevices() {
		vendor, _ := ctx.VendorID(id)
		product, _ := ctx.ProductID(id)
		manufacturer, err := ctx.ManufacturerString(id)
		if err != nil {
			manufacturer = "-"
		}
		name, err := ctx.ProductString(id)
		if err != nil {
			name = "-"
		}
		fmt.Printf("%04x:%04x %s %s (id %d)\n", vendor, product, manufacturer, name, id)
	}
}

func printEvent(ctx *usbtrack.Context, ev usbtrack.Event) {
	switch e := ev.(type) {
	case usbtrack.Added:
		vendor, _ := ctx.VendorID(e.Device)
		product, _ := ctx.ProductID(e.Device)
		fmt.Printf("%04x:%04x was plugged in (id %d)\n", vendor, product, e.Device)
	case usbtrack.Removed:
		vendor, _ := ctx.VendorID(e.Device)
		product, _ := ctx.ProductID(e.Device)
		fmt.Printf("%04x:%04x was unplugged (id %d)\n", vendor, product, e.Device)
	}
}

type deviceSnapshot struct {
	Id           uint32 `yaml:"id"`
	VendorId     string `yaml:"vendorId,omitempty"`
	ProductId    string `yaml:"productId,omitempty"`
	Manufacturer string `yaml:"manufacturer,omitempty"`
	Product      string `yaml:"product,omitempty"`
}

func writeSnapshots(ctx *usbtrack.Context, dir string) error {
	for _, id := range ctx.ConnectedDevices() {
		snapshot := deviceSnapshot{Id: uint32(id)}
		if vendor, ok := ctx.VendorID(id); ok {
			snapshot.VendorId = fmt.Sprintf("%04x", vendor)
		}
		if product, ok := ctx.ProductID(id); ok {
			snapshot.ProductId = fmt.Sprintf("%04x", product)
		}
		if s, err := ctx.ManufacturerString(id); err == nil {
			snapshot.Manufacturer = s
		}
		if s, err := ctx.ProductString(id); err == nil {
			snapshot.Product = s
		}

		name := fmt.Sprintf("%s-%s-%d", snapshot.VendorId, snapshot.ProductId, id)
		if snapshot.Product != "" {
			name = fmt.Sprintf("%s-%s", name, snapshot.Product)
		}
		path := filepath.Join(dir, sanitize.BaseName(name)+".yaml")

		data, err := yaml.Marshal(&snapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot for id %d: %w", id, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		klog.V(2).Infof("wrote snapshot %s", path)
	}
	return nil
}

// openConfig resolves a -config value of the form "file:<path>",
// "env:<VAR>" or "stdin" to a reader and its cleanup.
func openConfig(source string) (io.Reader, func() error, error) {
	noop := func() error { return nil }
	switch {
	case strings.HasPrefix(source, "file:"):
		file, err := os.Open(strings.TrimPrefix(source, "file:"))
		if err != nil {
			return nil, nil, err
		}
		return file, file.Close, nil
	case strings.HasPrefix(source, "env:"):
		variable := strings.TrimPrefix(source, "env:")
		data := os.Getenv(variable)
		if data == "" {
			return nil, nil, fmt.Errorf("config: environment variable %s is not set", variable)
		}
		return strings.NewReader(data), noop, nil
	case source == "stdin":
		return os.Stdin, noop, nil
	default:
		return nil, nil, fmt.Errorf("invalid config source: %s", source)
	}
}

type Config struct {
	Monitor     bool   `yaml:"monitor"`
	SnapshotDir string `yaml:"snapshotDir"`
	Events      string `yaml:"events"`

	// filter is compiled from Events by validate.
	filter stream.FilterFunc[usbtrack.Event]
}

func (c *Config) validate() error {
	if c.SnapshotDir != "" {
		info, err := os.Stat(c.SnapshotDir)
		if err != nil {
			return fmt.Errorf(".snapshotDir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf(".snapshotDir: %q is not a directory", c.SnapshotDir)
		}
	}

	filter, err := compileEventFilter(c.Events)
	if err != nil {
		return fmt.Errorf(".events: %w", err)
	}
	c.filter = filter

	return nil
}

// compileEventFilter turns a comma-separated list of event kinds ("add",
// "remove") into a filter. Empty or "all" keeps every event.
func compileEventFilter(kinds string) (stream.FilterFunc[usbtrack.Event], error) {
	trimmed := strings.TrimSpace(kinds)
	if trimmed == "" || trimmed == "all" {
		return stream.Any[usbtrack.Event](), nil
	}

	var filters []stream.FilterFunc[usbtrack.Event]
	for _, kind := range strings.Split(trimmed, ",") {
		switch strings.TrimSpace(kind) {
		case "add":
			filters = append(filters, func(ev usbtrack.Event) bool {
				_, ok := ev.(usbtrack.Added)
				return ok
			})
		case "remove":
			filters = append(filters, func(ev usbtrack.Event) bool {
				_, ok := ev.(usbtrack.Removed)
				return ok
			})
		default:
			return nil, fmt.Errorf("unknown event kind %q", kind)
		}
	}
	return stream.Or(filters...), nil
}

func parseConfig(reader io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(reader)
	config := &Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

type FlagValues struct {
	Config      string
	Monitor     bool
	SnapshotDir string
	Events      string

	config *Config
}

func initFlags() FlagValues {
	values := FlagValues{}
	flags := flag.NewFlagSet("usbtrack", flag.ExitOnError)
	klog.InitFlags(flags)
	flags.StringVar(&values.Config, "config", "", `configuration source (in form "file:<path>", "env:<ENV_VARIABLE>" or "stdin")`)
	flags.BoolVar(&values.Monitor, "monitor", false, "follow hotplug events after listing devices")
	flags.StringVar(&values.SnapshotDir, "snapshot-dir", "", "directory to write per-device YAML snapshots into")
	flags.StringVar(&values.Events, "events", "", `comma-separated event kinds to report in monitor mode ("add", "remove"; empty means all)`)
	flags.Parse(os.Args[1:])

	values.config = &Config{}
	if values.Config != "" {
		configReader, configCloser, err := openConfig(values.Config)
		if err != nil {
			klog.Fatalf("failed to open --config %q: %v", values.Config, err)
		}
		defer configCloser()

		config, err := parseConfig(configReader)
		if err != nil {
			klog.Fatalf("failed to parse --config %q: %v", values.Config, err)
		}
		values.config = config
	}

	// Flags override the config file.
	if values.Monitor {
		values.config.Monitor = true
	}
	if values.SnapshotDir != "" {
		values.config.SnapshotDir = values.SnapshotDir
	}
	if values.Events != "" {
		values.config.Events = values.Events
	}
	if err := values.config.validate(); err != nil {
		klog.Fatalf("invalid configuration: %v", err)
	}

	return values
}
