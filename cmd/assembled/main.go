// Command assembled wires configuration, identity, the transport
// engine, and the admin surface together behind a cli.App, following
// the teacher's cmd/drand command-per-verb layout: one subcommand per
// engine verb, each building its own short-lived Assembler over the
// node's persistent store.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"

	"github.com/drand/assemble/admin"
	"github.com/drand/assemble/assemble"
	"github.com/drand/assemble/config"
	"github.com/drand/assemble/dht"
	"github.com/drand/assemble/events"
	"github.com/drand/assemble/identity"
	"github.com/drand/assemble/log"
	"github.com/drand/assemble/metrics"
)

var (
	version   = "master"
	gitCommit = "none"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML config file",
	Value: "assembled.toml",
}

var bindFlag = &cli.StringFlag{
	Name:  "bind",
	Usage: "host:port the admin HTTP surface listens on",
	Value: ":8553",
}

var uriFlag = &cli.StringFlag{
	Name:     "uri",
	Usage:    "hex-encoded 20-byte content URI",
	Required: true,
}

var senderFlag = &cli.StringFlag{
	Name:  "sender",
	Usage: "hex-encoded 32-byte public key of the blob's publisher (get only)",
}

var receiverFlag = &cli.StringFlag{
	Name:     "receiver",
	Usage:    "hex-encoded 32-byte public key of the relay recipient",
	Required: true,
}

var blobFlag = &cli.StringFlag{
	Name:  "blob-file",
	Usage: "path to the blob to publish (put only)",
}

var messageFlag = &cli.StringFlag{
	Name:  "message",
	Usage: "opaque message text to relay (relay-message only)",
}

var timestampFlag = &cli.Int64Flag{
	Name:  "ts",
	Usage: "unix timestamp the blob or uri was published at",
}

const opTimeout = 10 * time.Second

func buildAssembler(l log.Logger, c *cli.Context) (*assemble.Assembler, *identity.KeyPair, *dht.BoltNetwork, *events.ChannelSink, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		cfg = config.NewConfig()
	}

	kp, err := identity.FromSeed([]byte(cfg.AccountSeed))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("deriving identity: %w", err)
	}
	pub, err := kp.PublicKeyBytes()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("reading public key: %w", err)
	}

	network, err := dht.NewBoltNetwork(l, cfg.BoltStorePath, pub, 1)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	sink := events.NewChannelSink(64)
	congestion := assemble.NewFixedCongestionController(cfg.TransportInvokingIntervalMS)
	a := assemble.NewAssembler(l, network, congestion, clockwork.NewRealClock(), cfg.TransportBufferThreshold, sink, cfg.Limits())
	a.UpdateNodeID(pub)
	a.Start()

	return a, kp, network, sink, nil
}

func startCmd(c *cli.Context) error {
	l := log.DefaultLogger()
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		l.Warnw("", "assembled", "falling back to default config", "err", err)
		cfg = config.NewConfig()
	}

	kp, err := identity.FromSeed([]byte(cfg.AccountSeed))
	if err != nil {
		return fmt.Errorf("deriving identity: %w", err)
	}
	pub, err := kp.PublicKeyBytes()
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}

	if err := metrics.RegisterRuntimeCollectors(); err != nil {
		l.Warnw("", "assembled", "failed to register runtime collectors", "err", err)
	}

	network, err := dht.NewBoltNetwork(l, cfg.BoltStorePath, pub, 1)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer network.Close()

	sink := events.NewChannelSink(256)
	congestion := assemble.NewFixedCongestionController(cfg.TransportInvokingIntervalMS)
	a := assemble.NewAssembler(l, network, congestion, clockwork.NewRealClock(), cfg.TransportBufferThreshold, sink, cfg.Limits())
	a.UpdateNodeID(pub)
	a.Start()
	defer a.Stop()

	bind := c.String(bindFlag.Name)
	srv := admin.New(l.Named("admin"), a)
	l.Infow("", "assembled", "node started", "self", fmt.Sprintf("%x", pub), "bind", bind)
	return srv.ListenAndServe(bind)
}

func putCmd(c *cli.Context) error {
	l := log.DefaultLogger()
	a, _, network, sink, err := buildAssembler(l, c)
	if err != nil {
		return err
	}
	defer network.Close()
	defer a.Stop()

	uri, err := parseURI(c.String(uriFlag.Name))
	if err != nil {
		return err
	}

	blobPath := c.String(blobFlag.Name)
	if blobPath == "" {
		return fmt.Errorf("a --blob-file is required")
	}
	blob, err := os.ReadFile(blobPath)
	if err != nil {
		return fmt.Errorf("reading blob file: %w", err)
	}

	if ec := a.Put(uri, blob); ec != assemble.NoError {
		return fmt.Errorf("put rejected: %s", ec)
	}

	select {
	case ev := <-sink.Events():
		if ev.Err != assemble.NoError {
			return fmt.Errorf("put failed: %s", ev.Err)
		}
		fmt.Printf("put succeeded: uri=%x\n", ev.URI)
		return nil
	case <-time.After(opTimeout):
		return fmt.Errorf("timed out waiting for put to complete")
	}
}

func getCmd(c *cli.Context) error {
	l := log.DefaultLogger()
	a, _, network, sink, err := buildAssembler(l, c)
	if err != nil {
		return err
	}
	defer network.Close()
	defer a.Stop()

	uri, err := parseURI(c.String(uriFlag.Name))
	if err != nil {
		return err
	}
	sender, err := parsePubKey(c.String(senderFlag.Name))
	if err != nil {
		return err
	}

	if ec := a.Get(sender, uri, c.Int64(timestampFlag.Name)); ec != assemble.NoError {
		return fmt.Errorf("get rejected: %s", ec)
	}

	select {
	case ev := <-sink.Events():
		if ev.Err != assemble.NoError {
			return fmt.Errorf("get failed: %s", ev.Err)
		}
		fmt.Printf("get succeeded: %d bytes\n", len(ev.Payload))
		return nil
	case <-time.After(opTimeout):
		return fmt.Errorf("timed out waiting for get to complete")
	}
}

func relayMessageCmd(c *cli.Context) error {
	l := log.DefaultLogger()
	a, _, network, sink, err := buildAssembler(l, c)
	if err != nil {
		return err
	}
	defer network.Close()
	defer a.Stop()

	receiver, err := parsePubKey(c.String(receiverFlag.Name))
	if err != nil {
		return err
	}

	if ec := a.RelayMessage(receiver, []byte(c.String(messageFlag.Name))); ec != assemble.NoError {
		return fmt.Errorf("relay-message rejected: %s", ec)
	}

	select {
	case ev := <-sink.Events():
		if ev.Err != assemble.NoError {
			return fmt.Errorf("relay-message failed: %s", ev.Err)
		}
		fmt.Println("relay-message succeeded")
		return nil
	case <-time.After(opTimeout):
		return fmt.Errorf("timed out waiting for relay-message to complete")
	}
}

func relayURICmd(c *cli.Context) error {
	l := log.DefaultLogger()
	a, _, network, sink, err := buildAssembler(l, c)
	if err != nil {
		return err
	}
	defer network.Close()
	defer a.Stop()

	receiver, err := parsePubKey(c.String(receiverFlag.Name))
	if err != nil {
		return err
	}
	uri, err := parseURI(c.String(uriFlag.Name))
	if err != nil {
		return err
	}

	if ec := a.RelayURI(receiver, uri, c.Int64(timestampFlag.Name)); ec != assemble.NoError {
		return fmt.Errorf("relay-uri rejected: %s", ec)
	}

	select {
	case ev := <-sink.Events():
		if ev.Err != assemble.NoError {
			return fmt.Errorf("relay-uri failed: %s", ev.Err)
		}
		fmt.Println("relay-uri succeeded")
		return nil
	case <-time.After(opTimeout):
		return fmt.Errorf("timed out waiting for relay-uri to complete")
	}
}

func parseURI(s string) (assemble.URI, error) {
	var uri assemble.URI
	b, err := hex.DecodeString(s)
	if err != nil {
		return uri, fmt.Errorf("decoding --uri: %w", err)
	}
	if len(b) != len(uri) {
		return uri, fmt.Errorf("--uri must decode to %d bytes, got %d", len(uri), len(b))
	}
	copy(uri[:], b)
	return uri, nil
}

func parsePubKey(s string) (assemble.PubKey, error) {
	var k assemble.PubKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("decoding public key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("public key must decode to %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

func main() {
	app := &cli.App{
		Name:    "assembled",
		Usage:   "run or drive an assemble blob-transport node",
		Version: fmt.Sprintf("%s (%s)", version, gitCommit),
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "run the transport engine and its admin HTTP surface",
				Flags:  []cli.Flag{bindFlag},
				Action: startCmd,
			},
			{
				Name:   "put",
				Usage:  "publish a blob under a uri",
				Flags:  []cli.Flag{uriFlag, blobFlag},
				Action: putCmd,
			},
			{
				Name:   "get",
				Usage:  "fetch a blob published under a uri",
				Flags:  []cli.Flag{uriFlag, senderFlag, timestampFlag},
				Action: getCmd,
			},
			{
				Name:   "relay-message",
				Usage:  "relay an opaque message to a peer",
				Flags:  []cli.Flag{receiverFlag, messageFlag},
				Action: relayMessageCmd,
			},
			{
				Name:   "relay-uri",
				Usage:  "announce a published uri to a peer",
				Flags:  []cli.Flag{receiverFlag, uriFlag, timestampFlag},
				Action: relayURICmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.DefaultLogger().Fatalw("", "assembled", "err", err)
	}
}
