package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/config"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/devicesession"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/mockcontroller"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/supervisor"
)

func run(c *cli.Context) error {
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("ATDome bridge starting")

	db, err := bolt.Open(c.String("db"), 0600, nil)
	if err != nil {
		log.Fatalf("error opening database: %v", err)
	}
	defer db.Close()

	store, err := config.NewStore(db)
	if err != nil {
		log.Fatalf("error creating config store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deviceAddr, err := resolveDeviceAddr(ctx, c, store)
	if err != nil {
		log.Fatalf("error resolving device address: %v", err)
	}

	sess, err := devicesession.Dial(ctx, deviceAddr, log.StandardLogger())
	if err != nil {
		log.Fatalf("error connecting to controller at %s: %v", deviceAddr, err)
	}
	defer sess.Close()

	publisher := buildPublisher(c)

	sup := supervisor.New(publisher, sess, log.StandardLogger())

	go func() {
		if err := sup.Run(ctx); err != nil {
			log.WithError(err).Error("supervisor stopped")
		}
	}()

	log.Infof("ATDome bridge connected to controller at %s", deviceAddr)

	<-ctx.Done()
	log.Info("shutting down ATDome bridge")
	return nil
}

// resolveDeviceAddr connects to a real controller at --host/--real-port
// when --host is set; otherwise it stands up an embedded mock controller
// (tuned from the persisted store) and targets that instead, so the
// bridge is runnable with no real hardware on hand.
func resolveDeviceAddr(ctx context.Context, c *cli.Context, store *config.Store) (string, error) {
	if host := c.String("host"); host != "" {
		return net.JoinHostPort(host, strconv.Itoa(c.Int("real-port"))), nil
	}

	mockCfg, err := store.GetMockControllerConfig()
	if err != nil {
		return "", err
	}
	mockCfg.ListenAddr = net.JoinHostPort("127.0.0.1", strconv.Itoa(c.Int("port")))

	mc := mockcontroller.New(mockcontroller.FromStoreConfig(mockCfg), log.StandardLogger())
	go func() {
		if err := mc.Run(ctx); err != nil {
			log.WithError(err).Error("embedded mock controller stopped")
		}
	}()

	for mc.Addr() == nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return mc.Addr().String(), nil
}

func buildPublisher(c *cli.Context) supervisor.EventPublisher {
	broker := c.String("mqtt-broker")
	if broker == "" {
		log.Info("no MQTT broker configured, recording events in memory")
		return supervisor.NewRecordingPublisher()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("atdomectl")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to MQTT broker: %v", token.Error())
	}

	return supervisor.NewMQTTPublisher(client, "atdome", log.WithField("component", "publisher"))
}

func main() {
	app := cli.App{
		Name:  "atdomectl",
		Usage: "runs the ATDome supervisor against a real or embedded mock controller",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "enable debug logging",
				EnvVars: []string{"DEBUG"},
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "real controller host; when empty an embedded mock controller is used instead",
			},
			&cli.IntFlag{
				Name:  "real-port",
				Usage: "real controller TCP port",
				Value: 9999,
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "listen port for the embedded mock controller",
				Value:   0,
			},
			&cli.StringFlag{
				Name:  "mqtt-broker",
				Usage: "MQTT broker address for the event publisher",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "path to the bridge's bbolt configuration database",
				Value: "atdome.db",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("error: %v", err)
	}
}
