package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	keychain "github.com/status-im/signingkeychain-go"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/emulator"
	"github.com/status-im/signingkeychain-go/hardware"
	"github.com/status-im/signingkeychain-go/hdnode"
	"github.com/status-im/signingkeychain-go/keystore"
	"github.com/status-im/signingkeychain-go/transport"
)

type commandFunc func(ctx context.Context) error

var (
	logger = log.New("package", "signingkeychain-go/cmd/keychain-tool")

	commands map[string]commandFunc

	flagCommand  = flag.String("c", "", "command")
	flagKeystore = flag.String("k", "", "keystore file path")
	flagPath     = flag.String("p", "m/44'/536'/0'/0/0'", "derivation path")
	flagCount    = flag.Int("n", 1, "number of local keys to restore")
	flagDisplay  = flag.Bool("d", false, "display the address on the device")
	flagEmulator = flag.Bool("e", false, "use an emulated device instead of USB")
	flagRetries  = flag.Int("r", 5, "connection retries while waiting for the wallet app")
	flagMetrics  = flag.Bool("m", false, "print device metrics after the command")
	flagLogLevel = flag.String("l", "", `Log level, one of: "ERROR", "WARN", "INFO", "DEBUG", and "TRACE"`)
)

func initLogger() {
	if *flagLogLevel == "" {
		*flagLogLevel = "info"
	}

	level, err := log.LvlFromString(strings.ToLower(*flagLogLevel))
	if err != nil {
		stdlog.Fatal(err)
	}

	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	filteredHandler := log.LvlFilterHandler(level, handler)
	log.Root().SetHandler(filteredHandler)
}

func init() {
	flag.Parse()
	initLogger()

	commands = map[string]commandFunc{
		"mnemonic":    commandMnemonic,
		"store":       commandStore,
		"derive":      commandDerive,
		"sign":        commandSign,
		"device-info": commandDeviceInfo,
		"device-key":  commandDeviceKey,
		"device-sign": commandDeviceSign,
	}
}

func usage() {
	fmt.Printf("\nUsage: keychain-tool -c COMMAND [FLAGS]\n\nValid commands:\n\n")
	for name := range commands {
		fmt.Printf("- %s\n", name)
	}
	fmt.Print("\nFlags:\n\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func fail(msg string, ctx ...interface{}) {
	logger.Error(msg, ctx...)
	os.Exit(1)
}

func main() {
	if *flagCommand == "" {
		logger.Error("you must specify a command")
		usage()
	}

	reg := prometheus.NewRegistry()
	if err := hardware.RegisterMetrics(reg); err != nil {
		fail("error registering metrics", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if f, ok := commands[*flagCommand]; ok {
		err := f(ctx)
		if *flagMetrics {
			printMetrics(reg)
		}

		if err != nil {
			logger.Error("error executing command", "command", *flagCommand, "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	fail("unknown command", "command", *flagCommand)
	usage()
}

func ask(description string) string {
	r := bufio.NewReader(os.Stdin)
	fmt.Printf("%s: ", description)
	text, err := r.ReadString('\n')
	if err != nil {
		stdlog.Fatal(err)
	}

	return strings.TrimSpace(text)
}

func askHex(description string) []byte {
	s := strings.TrimPrefix(ask(description), "0x")

	data, err := hex.DecodeString(s)
	if err != nil {
		stdlog.Fatal(err)
	}

	return data
}

func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Error("error gathering metrics", "error", err)
		return
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			fmt.Printf("%s{%s} %v\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
}

func loadKeychain() (*keychain.Keychain, error) {
	cfg := keychain.DefaultConfig()
	if *flagKeystore != "" {
		return keychain.NewFromKeystore(*flagKeystore, ask("Password"), "", cfg)
	}

	return keychain.NewFromMnemonic(ask("Mnemonic"), "", cfg)
}

func commandMnemonic(_ context.Context) error {
	mnemonic, err := hdnode.NewMnemonic(256)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", mnemonic)

	return nil
}

func commandStore(_ context.Context) error {
	if *flagKeystore == "" {
		logger.Error("you must specify a keystore path with the -k flag")
		usage()
	}

	mnemonic := ask("Mnemonic")
	password := ask("Password")
	if err := keystore.Store(*flagKeystore, mnemonic, password, keystore.StandardParams); err != nil {
		return err
	}

	fmt.Printf("keystore written to %s\n", *flagKeystore)

	return nil
}

func commandDerive(_ context.Context) error {
	k, err := loadKeychain()
	if err != nil {
		return err
	}
	defer k.Close()

	if _, err := k.RestoreLocalHDSigningKeysUpToIndex(*flagCount); err != nil {
		return err
	}

	for i, key := range k.SigningKeys() {
		fmt.Printf("%d %s 0x%x\n", i, key.Type().UniqueKey(), key.PublicKeyBytes())
	}

	return nil
}

type hashTx []byte

func (h hashTx) SigningHash() ([]byte, error) {
	return h, nil
}

func commandSign(ctx context.Context) error {
	path, err := derivationpath.Parse(*flagPath)
	if err != nil {
		return err
	}

	k, err := loadKeychain()
	if err != nil {
		return err
	}
	defer k.Close()

	if _, err := k.DeriveLocalHDSigningKey(path, true); err != nil {
		return err
	}

	sig, err := k.Sign(ctx, hashTx(askHex("Hash")))
	if err != nil {
		return err
	}

	fmt.Printf("Signature: 0x%x\n", sig.Bytes())

	return nil
}

// openDevice connects to the wallet app and returns the wallet with a
// function closing the connection.
func openDevice(ctx context.Context) (*hardware.Wallet, func(), error) {
	var t transport.Transport
	if *flagEmulator {
		dev, err := emulator.New(emulator.DefaultConfig())
		if err != nil {
			return nil, nil, err
		}

		go confirmOnTerminal(ctx, dev)
		t = dev
	} else {
		hid, err := transport.FirstHID()
		if err != nil {
			return nil, nil, err
		}
		t = hid
	}

	cfg := hardware.DefaultConnectionConfig()
	cfg.MaxRetries = *flagRetries

	conn := hardware.NewConnection(t, cfg)
	fmt.Printf("waiting for the wallet app to be open on the device...\n")

	w, err := conn.Connect(ctx)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	return w, func() {
		if err := conn.Close(); err != nil {
			logger.Error("error closing connection", "error", err)
		}
	}, nil
}

// confirmOnTerminal stands in for the device buttons of an emulated device.
func confirmOnTerminal(ctx context.Context, dev *emulator.Device) {
	for {
		select {
		case p := <-dev.Prompts():
			if strings.ToLower(ask(fmt.Sprintf("Confirm instruction %02x at %s on device? [y/N]", p.Ins, p.Path))) == "y" {
				dev.Accept()
			} else {
				dev.Reject()
			}
		case <-ctx.Done():
			return
		}
	}
}

func commandDeviceInfo(ctx context.Context) error {
	w, closeDevice, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	name, err := w.GetAppName(ctx)
	if err != nil {
		return err
	}

	version, err := w.GetVersion(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("App: %s\n", name)
	fmt.Printf("Version: %s\n", version)

	return nil
}

func commandDeviceKey(ctx context.Context) error {
	path, err := derivationpath.Parse(*flagPath)
	if err != nil {
		return err
	}

	w, closeDevice, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	resp, err := w.GetPublicKey(ctx, path, *flagDisplay)
	if err != nil {
		return err
	}

	fmt.Printf("PublicKey: 0x%x\n", resp.PublicKey)
	fmt.Printf("ChainCode: 0x%x\n", resp.ChainCode)

	return nil
}

func commandDeviceSign(ctx context.Context) error {
	path, err := derivationpath.Parse(*flagPath)
	if err != nil {
		return err
	}

	hash := askHex("Hash")

	w, closeDevice, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	sig, err := w.DoSignHash(ctx, path, hash)
	if err != nil {
		return err
	}

	fmt.Printf("Signature: 0x%x\n", sig.Bytes())

	return nil
}
