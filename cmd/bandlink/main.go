package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/banshee-data/bandlink/internal/api"
	"github.com/banshee-data/bandlink/internal/config"
	"github.com/banshee-data/bandlink/internal/db"
	"github.com/banshee-data/bandlink/internal/demo"
	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/monitoring"
	"github.com/banshee-data/bandlink/internal/permission"
	"github.com/banshee-data/bandlink/internal/serialmux"
	"github.com/banshee-data/bandlink/internal/session"
	"github.com/banshee-data/bandlink/internal/store"
	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/timeutil"
	"github.com/banshee-data/bandlink/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	configPath    = flag.String("config", "", "Path to a JSON config file (defaults apply when empty)")
	dbPath        = flag.String("db", db.DefaultPath, "Path to the paired device database")
	portPath      = flag.String("port", "", "Serial port of the band, overriding port_path from the config")
	startDemo     = flag.Bool("demo", false, "Start the demo source at launch")
	autoConnect   = flag.Bool("autoconnect", false, "Connect to the band at launch")
	debugMode     = flag.Bool("debug", false, "Log every packet")
	showVersion   = flag.Bool("version", false, "Print version and exit")
	disableSerial = flag.Bool("disable-serial", false, "Run without serial access (demo and API only)")
	mockSerial    = flag.Bool("mock-serial", false, "Replace the band with a mock port replaying the demo recording")
)

// serialTransport is satisfied by serialmux.Transport and DisabledTransport.
type serialTransport interface {
	device.Transport
	AttachAdminRoutes(*http.ServeMux)
	Close() error
}

// mockPortPath is the path the mock band is discovered on.
const mockPortPath = "/dev/mock-band"

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags]\n", os.Args[0])
	fmt.Fprintf(out, "       %s migrate <action> [args]\n", os.Args[0])
	fmt.Fprintf(out, "       %s ctl [-server url] <command> [args]\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			fs := flag.NewFlagSet("migrate", flag.ExitOnError)
			path := fs.String("db", db.DefaultPath, "Path to the database")
			fs.Parse(os.Args[2:])
			if err := db.RunMigrateCommand(fs.Args(), *path, os.Stdout); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		case "ctl":
			if err := runCtl(os.Args[2:], os.Stdout, nil); err != nil {
				log.Fatalf("ctl: %v", err)
			}
			return
		}
	}

	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetDebug(*debugMode)

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("loaded config from %s", *configPath)
	}
	if *portPath != "" {
		cfg.PortPath = portPath
	}
	deviceCfg := cfg.DeviceConfig()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	st := store.New(timeutil.RealClock{}, store.WithHistorySize(cfg.GetHistorySize()))
	defer st.Close()

	recording, err := loadRecording(cfg.GetDemoRecording())
	if err != nil {
		log.Fatalf("failed to load demo recording: %v", err)
	}
	src, err := demo.NewSource(timeutil.RealClock{}, st, recording, demo.WithInterval(cfg.GetDemoInterval()))
	if err != nil {
		log.Fatalf("failed to create demo source: %v", err)
	}

	var transport serialTransport
	switch {
	case *disableSerial:
		log.Print("serial disabled")
		transport = serialmux.NewDisabledTransport()
	case *mockSerial:
		transport = newMockTransport(database, cfg, recording)
	default:
		transport = serialmux.NewTransport(database, nil, serialmux.WithPortDefaults(cfg.GetPortOptions()))
	}
	defer transport.Close()

	perms := permission.NewPolicy(cfg.GetPermissions())
	sess := session.NewManager(device.New(transport, perms, st, deviceCfg), src, st)
	defer sess.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *startDemo:
		sess.StartDemo()
	case *autoConnect:
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sess.Connect(ctx); err != nil {
				log.Printf("autoconnect failed: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(sess, perms, database, deviceCfg)
		mux := apiServer.ServeMux()

		// mount the admin debugging routes (accessible only over localhost or Tailscale)
		apiServer.AttachAdminRoutes(mux)
		transport.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("%s listening on %s", version.Info(), *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func loadRecording(path string) ([]telemetry.SensorReading, error) {
	if path == "" {
		return demo.DefaultRecording(), nil
	}
	return demo.LoadRecordingFile(path)
}

// mockPackets encodes a recording as the wire records a band would send.
func mockPackets(seq []telemetry.SensorReading) []string {
	packets := make([]string, len(seq))
	for i, r := range seq {
		packets[i] = telemetry.Encode(r)
	}
	return packets
}

// newMockTransport discovers a single band on mockPortPath. Every open starts
// a fresh replay so the band can be reconnected after a disconnect.
func newMockTransport(registry serialmux.Registry, cfg *config.Config, seq []telemetry.SensorReading) *serialmux.Transport {
	packets := mockPackets(seq)
	interval := cfg.GetDemoInterval()
	factory := serialmux.SerialPortOpener(func(path string, mode *serialmux.SerialPortMode) (serialmux.SerialPorter, error) {
		return serialmux.NewMockBandPort(packets, interval), nil
	})
	band := &enumerator.PortDetails{Name: mockPortPath, IsUSB: true, Product: cfg.GetDeviceName()}
	return serialmux.NewTransport(registry, factory,
		serialmux.WithEnumerator(func() ([]*enumerator.PortDetails, error) {
			return []*enumerator.PortDetails{band}, nil
		}),
		serialmux.WithPortDefaults(cfg.GetPortOptions()),
	)
}
