// Command pill-dispenser runs the compartment-wheel controller: it
// rotates the wheel on schedule, watches the current compartment with a
// distance sensor, drives the reminder LED, and reports events to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/pill-dispenser/internal/actuate"
	"github.com/sweeney/pill-dispenser/internal/dispense"
	"github.com/sweeney/pill-dispenser/internal/gpio"
	"github.com/sweeney/pill-dispenser/internal/mqtt"
	"github.com/sweeney/pill-dispenser/internal/scheduler"
	"github.com/sweeney/pill-dispenser/internal/sensor"
	"github.com/sweeney/pill-dispenser/internal/status"
	"github.com/sweeney/pill-dispenser/internal/web"
)

type options struct {
	tick          time.Duration
	poll          time.Duration
	rotateEvery   time.Duration
	reminder      time.Duration
	flashFor      time.Duration
	flashEvery    time.Duration
	settle        time.Duration
	presentMm     int
	takenMm       int
	faultLimit    int
	broker        string
	heartbeat     time.Duration
	httpAddr      string
	pinStep       int
	pinDir        int
	pinLED        int
	stepsPerRev   int
	compartments  int
	i2cBus        string
	sensorRetries int
	sensorDelay   time.Duration
	printDistance bool
}

func main() {
	var opts options
	flag.DurationVar(&opts.tick, "tick", 100*time.Millisecond, "Scheduler tick interval")
	flag.DurationVar(&opts.poll, "poll", 2*time.Second, "Sensor polling interval")
	flag.DurationVar(&opts.rotateEvery, "rotate-every", 12*time.Hour, "Wheel rotation interval")
	flag.DurationVar(&opts.reminder, "reminder", 30*time.Minute, "Grace period before the reminder LED")
	flag.DurationVar(&opts.flashFor, "flash-for", 2*time.Minute, "Empty-compartment flash duration")
	flag.DurationVar(&opts.flashEvery, "flash-every", 500*time.Millisecond, "Flash toggle interval")
	flag.DurationVar(&opts.settle, "settle", 2*time.Second, "Wheel settle delay after a rotation")
	flag.IntVar(&opts.presentMm, "present-mm", 60, "Distance below which a pill is present")
	flag.IntVar(&opts.takenMm, "taken-mm", 80, "Distance above which a dose counts as taken")
	flag.IntVar(&opts.faultLimit, "fault-limit", 5, "Consecutive sensor faults before warning (0 to disable)")
	flag.StringVar(&opts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&opts.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.IntVar(&opts.pinStep, "pin-step", gpio.DefaultPinStep, "BCM pin number for stepper STEP")
	flag.IntVar(&opts.pinDir, "pin-dir", gpio.DefaultPinDir, "BCM pin number for stepper DIR")
	flag.IntVar(&opts.pinLED, "pin-led", gpio.DefaultPinLED, "BCM pin number for the reminder LED")
	flag.IntVar(&opts.stepsPerRev, "steps-per-rev", 4096, "Motor steps per wheel revolution")
	flag.IntVar(&opts.compartments, "compartments", 14, "Compartments on the wheel")
	flag.StringVar(&opts.i2cBus, "i2c-bus", "", "I2C bus for the distance sensor (empty = first available)")
	flag.IntVar(&opts.sensorRetries, "sensor-retries", 20, "Data-ready polls before a sensor timeout")
	flag.DurationVar(&opts.sensorDelay, "sensor-retry-delay", 5*time.Millisecond, "Delay between data-ready polls")
	flag.BoolVar(&opts.printDistance, "print-distance", false, "Print one distance reading and exit")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func (o options) dispenseConfig() dispense.Config {
	return dispense.Config{
		RotationInterval:     o.rotateEvery,
		ReminderTimeout:      o.reminder,
		NoPillsFlashDuration: o.flashFor,
		PollInterval:         o.poll,
		FlashInterval:        o.flashEvery,
		PresentThresholdMm:   o.presentMm,
		TakenThresholdMm:     o.takenMm,
		FaultDegradeCount:    o.faultLimit,
	}
}

func (o options) statusConfig() status.Config {
	return status.Config{
		TickMs:       o.tick.Milliseconds(),
		PollMs:       o.poll.Milliseconds(),
		RotationMs:   o.rotateEvery.Milliseconds(),
		ReminderMs:   o.reminder.Milliseconds(),
		FlashMs:      o.flashEvery.Milliseconds(),
		HeartbeatMs:  o.heartbeat.Milliseconds(),
		PresentMm:    o.presentMm,
		TakenMm:      o.takenMm,
		Compartments: o.compartments,
		Broker:       o.broker,
		HTTPPort:     o.httpAddr,
	}
}

func run(opts options) error {
	// Initialize hardware
	actuator, err := gpio.NewRealActuator(opts.pinStep, opts.pinDir, opts.pinLED)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer actuator.Close()

	device, err := sensor.NewVL53L0X(opts.i2cBus, sensor.DefaultI2CAddr)
	if err != nil {
		return fmt.Errorf("init distance sensor: %w", err)
	}
	driver := sensor.NewDriver(device, opts.sensorRetries, opts.sensorDelay)
	defer driver.Close()

	// Print distance mode
	if opts.printDistance {
		r := driver.Poll()
		if !r.Valid {
			return fmt.Errorf("sensor fault: no valid reading")
		}
		fmt.Printf("distance: %dmm\n", r.DistanceMm)
		return nil
	}

	wheel := actuate.NewWheel(actuator, opts.stepsPerRev, opts.compartments, opts.settle)
	indicator := actuate.NewIndicator(actuator)

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(opts.broker)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), opts.statusConfig())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.httpAddr)
	}

	log.Printf("started: tick=%v poll=%v rotate-every=%v reminder=%v broker=%s",
		opts.tick, opts.poll, opts.rotateEvery, opts.reminder, opts.broker)

	sched := scheduler.New(opts.dispenseConfig(), driver, wheel, indicator)

	ticker := time.NewTicker(opts.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sched, wheel, publisher, publisher, tracker, opts.heartbeat, time.Now(), time.Now, ticker.C, sigCh)
}

// startTime anchors the rotation and heartbeat clocks; the caller captures
// it before the loop runs so they never start later than the caller thinks.
func runLoop(sched *scheduler.Scheduler, wheel *actuate.Wheel, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, startTime time.Time, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx := dispense.NewContext(startTime)
	lastHeartbeat := startTime

	sched.OnEvent = func(e dispense.Event) {
		if err := publisher.Publish(e); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			ctx = sched.Tick(ctx, t)

			if tracker != nil {
				tracker.Update(ctx, wheel.Compartment())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			// Check for heartbeat
			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				log.Printf("heartbeat: state=%s rotations=%d taken=%d faults=%d",
					ctx.State, ctx.Counts.Rotations, ctx.Counts.DosesTaken, ctx.Counts.SensorFaults)

				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
