package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	"github.com/sensepost/fxics/fxstream"
	"github.com/sensepost/fxics/ics"
	"github.com/sensepost/fxics/idset"
	"github.com/sensepost/fxics/mapi"
	"github.com/sensepost/fxics/pcl"
	"github.com/sensepost/fxics/utils"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//globals
var (
	config utils.YamlConfig
	schema = mapi.DefaultSchema()
	osFs   = afero.NewOsFs()
)

//libLogger is handed to the codecs, they only talk with --debug
func libLogger(c *cli.Context) *zap.Logger {
	if c.GlobalBool("debug") {
		return utils.Logger()
	}
	return zap.NewNop()
}

func streamOptions(c *cli.Context) fxstream.Options {
	opts := fxstream.DefaultOptions()
	opts.MaxDepth = config.MaxDepth
	opts.Logger = libLogger(c)
	if config.Lenient {
		opts = opts.Lenient()
	}
	return opts
}

func idsetOptions(c *cli.Context) idset.Options {
	opts := idset.DefaultOptions()
	opts.Logger = libLogger(c)
	if config.Lenient {
		opts = opts.Lenient()
	}
	return opts
}

//readInput loads the file named by the first argument, or stdin for "-". With --hex the content is hex text.
func readInput(c *cli.Context) ([]byte, error) {
	path := c.Args().First()
	if path == "" {
		return nil, fmt.Errorf("An input file is required, use - for stdin")
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = ioutil.ReadAll(os.Stdin)
	} else {
		data, err = utils.ReadFile(osFs, path)
	}
	if err != nil {
		return nil, err
	}
	if c.Bool("hex") {
		return decodeHex(string(data))
	}
	return data, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("Invalid hex input: %s", err)
	}
	return b, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return afero.WriteFile(osFs, path, data, 0644)
}

func streamType(c *cli.Context) (fxstream.StreamType, error) {
	return fxstream.ParseStreamType(c.String("type"))
}

func formatValue(v fxstream.PropValue) string {
	switch {
	case v.Multi != nil:
		parts := make([]string, len(v.Multi))
		for i, m := range v.Multi {
			parts[i] = hex.EncodeToString(m)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case v.Fixed != nil:
		if t, err := v.Time(); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
		return hex.EncodeToString(v.Fixed)
	}
	if s, err := v.Str(); err == nil {
		return fmt.Sprintf("%q", s)
	}
	return hex.EncodeToString(v.Var)
}

func printTree(tree *fxstream.Tree) {
	tree.Walk(tree.Root, func(idx, depth int) bool {
		el := tree.Get(idx)
		indent := strings.Repeat("  ", depth)
		fmt.Printf("%s%s\n", indent, el.Kind)
		if el.Meta != nil {
			fmt.Printf("%s  @%s = %s\n", indent, mapi.Describe(schema, el.Meta.Tag, nil), formatValue(*el.Meta))
		}
		for _, p := range el.Props {
			fmt.Printf("%s  %s = %s\n", indent, mapi.Describe(schema, p.Tag, p.Named), formatValue(p))
		}
		return true
	})
	for _, v := range tree.Violations {
		utils.Warning.Println(v.Error())
	}
}

func decode(c *cli.Context) error {
	st, err := streamType(c)
	if err != nil {
		return err
	}
	buf, err := readInput(c)
	if err != nil {
		return err
	}
	tree, err := fxstream.Decode(buf, st, streamOptions(c))
	if err != nil {
		return err
	}
	utils.Trace.Printf("Decoded %d bytes into %d elements", len(buf), len(tree.Elements))
	printTree(tree)

	if c.Bool("sync") {
		sum, err := ics.Summarize(tree, idsetOptions(c))
		if err != nil {
			return err
		}
		printSummary(sum)
	}
	return nil
}

func printSummary(sum *ics.Summary) {
	utils.Info.Printf("%s: %d changes, %d violations", sum.Type, len(sum.Changes), sum.Violations)
	for _, h := range sum.Changes {
		fmt.Printf("%s mid=0x%016X fid=0x%016X changekey=%s pcl=%s\n", h.Kind, h.MID, h.FolderID, h.ChangeKey, h.PCL)
	}
	if sum.Deletions != nil {
		fmt.Printf("deleted: %d, no longer in scope: %d, expired: %d\n",
			sum.Deletions.Deleted.Count(), sum.Deletions.NoLongerInScope.Count(), sum.Deletions.Expired.Count())
	}
	if sum.ReadStates != nil {
		fmt.Printf("read: %d, unread: %d\n", sum.ReadStates.Read.Count(), sum.ReadStates.Unread.Count())
	}
	if sum.State != nil {
		printState(sum.State)
	}
}

func printState(s *ics.State) {
	fmt.Printf("IdsetGiven:   %s\n", s.IdsetGiven)
	fmt.Printf("CnsetSeen:    %s\n", s.CnsetSeen)
	fmt.Printf("CnsetSeenFAI: %s\n", s.CnsetSeenFAI)
	fmt.Printf("CnsetRead:    %s\n", s.CnsetRead)
}

func roundtrip(c *cli.Context) error {
	st, err := streamType(c)
	if err != nil {
		return err
	}
	buf, err := readInput(c)
	if err != nil {
		return err
	}
	tree, err := fxstream.Decode(buf, st, streamOptions(c))
	if err != nil {
		return err
	}
	out, err := fxstream.Encode(tree)
	if err != nil {
		return err
	}
	if !bytes.Equal(buf, out) {
		return cli.NewExitError(fmt.Sprintf("Re-encoded stream differs: %d bytes in, %d bytes out", len(buf), len(out)), 2)
	}
	utils.Info.Printf("%s stream of %d bytes re-encodes identically", st, len(buf))
	return nil
}

//chunk splits a stream the way it would be uploaded, then collects it back the way it would be downloaded
func chunk(c *cli.Context) error {
	buf, err := readInput(c)
	if err != nil {
		return err
	}
	size := c.Int("size")
	if size <= 0 {
		size = config.ChunkSize
	}
	opts := streamOptions(c)
	ctx := context.Background()

	sink := &fxstream.BufferedSink{}
	if err := fxstream.Upload(ctx, sink, buf, size, opts); err != nil {
		return err
	}
	for i, ch := range sink.Chunks {
		fmt.Printf("chunk %d: %d bytes\n", i, len(ch))
	}
	src, err := fxstream.NewStreamSource(sink.Bytes(), opts)
	if err != nil {
		return err
	}
	back, err := fxstream.Collect(ctx, src, size)
	if err != nil {
		return err
	}
	if !bytes.Equal(back, buf) {
		return cli.NewExitError("Collected stream differs from the input", 2)
	}
	if c.Bool("points") {
		points, err := fxstream.SplitPoints(buf, opts)
		if err != nil {
			return err
		}
		fmt.Println(points)
	}
	utils.Info.Printf("%d bytes in %d chunks of at most %d bytes", len(buf), len(sink.Chunks), size)
	return nil
}

func showIDSET(c *cli.Context) error {
	form, err := idset.ParseForm(c.String("form"))
	if err != nil {
		return err
	}
	buf, err := readInput(c)
	if err != nil {
		return err
	}
	set, err := idset.Decode(buf, form, idsetOptions(c))
	if err != nil {
		return err
	}
	if set.Reordered {
		utils.Warning.Println("Replicas were out of order and have been sorted")
	}
	fmt.Println(set)
	fmt.Printf("%d values\n", set.Count())
	if form == idset.FormReplID && c.Bool("ids") {
		ids, err := set.IDs()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Printf("0x%016X\n", id)
		}
	}
	if form == idset.FormReplGUID && c.Bool("ids") {
		ltids, err := set.LongTermIDs()
		if err != nil {
			return err
		}
		for _, l := range ltids {
			fmt.Println(hex.EncodeToString(l.Marshal()))
		}
	}
	if c.Bool("encode") {
		out, err := set.Encode()
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(out))
	}
	return nil
}

func comparePCL(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("Two hex encoded PCLs are required: incoming then stored", 1)
	}
	var lists [2]pcl.PCL
	for i := range lists {
		raw, err := decodeHex(c.Args().Get(i))
		if err != nil {
			return err
		}
		if lists[i], err = pcl.DecodeWith(raw, idsetOptions(c)); err != nil {
			return err
		}
	}
	rel := pcl.Compare(lists[0], lists[1])
	fmt.Println(rel)
	if rel == pcl.Conflict {
		merged, err := pcl.Merge(lists[0], lists[1])
		if err != nil {
			return err
		}
		out, err := merged.Encode()
		if err != nil {
			return err
		}
		fmt.Printf("merged: %s\n", hex.EncodeToString(out))
	}
	return nil
}

func openStore(c *cli.Context) (ics.Store, error) {
	cfg := config.Store
	if cfg.Backend == "minio" && cfg.SecretKey == "" {
		fmt.Printf("Secret key: ")
		secret, err := gopass.GetPasswd()
		if err != nil {
			return nil, fmt.Errorf("The minio secret key is required. Supply it with --secret-key")
		}
		cfg.SecretKey = string(secret)
	}
	return ics.NewStore(context.Background(), cfg, osFs, utils.Logger())
}

func stateKey(c *cli.Context) (string, error) {
	key := c.String("key")
	if key == "" {
		return "", cli.NewExitError("A state key is required. Use --key", 1)
	}
	return key, nil
}

//saveState reads a state stream, or the state at the end of a synchronization stream, and stores it
func saveState(c *cli.Context) error {
	key, err := stateKey(c)
	if err != nil {
		return err
	}
	buf, err := readInput(c)
	if err != nil {
		return err
	}
	st := fxstream.State
	if c.String("type") != "" {
		if st, err = streamType(c); err != nil {
			return err
		}
	}
	tree, err := fxstream.Decode(buf, st, streamOptions(c))
	if err != nil {
		return err
	}
	sum, err := ics.Summarize(tree, idsetOptions(c))
	if err != nil {
		return err
	}
	if sum.State == nil {
		return fmt.Errorf("The %s stream carries no state", st)
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	state := sum.State
	if c.Bool("merge") {
		old, err := store.Load(ctx, key)
		switch {
		case err == nil:
			if !state.Covers(old) {
				utils.Warning.Printf("State %s has changes the new state has not seen, merging", key)
			}
			if err := old.Merge(state); err != nil {
				return err
			}
			state = old
		case !errors.Is(err, ics.ErrNotFound):
			return err
		}
	}
	if err := store.Save(ctx, key, state); err != nil {
		return err
	}
	utils.Info.Printf("Saved state %s", key)
	return nil
}

func loadState(c *cli.Context) error {
	key, err := stateKey(c)
	if err != nil {
		return err
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	state, err := store.Load(context.Background(), key)
	if err != nil {
		return err
	}
	if c.Bool("show") {
		printState(state)
		return nil
	}
	buf, err := state.Stream()
	if err != nil {
		return err
	}
	return writeOutput(c.String("out"), buf)
}

func deleteState(c *cli.Context) error {
	key, err := stateKey(c)
	if err != nil {
		return err
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Delete(context.Background(), key); err != nil {
		return err
	}
	utils.Info.Printf("Deleted state %s", key)
	return nil
}

func listStates(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	keys, err := store.Keys(context.Background())
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

//loadConfig reads the yaml file, then lets command line flags override it
func loadConfig(c *cli.Context) error {
	config = utils.DefaultConfig()
	if path := c.GlobalString("config"); path != "" {
		var err error
		if config, err = utils.ReadYml(osFs, path); err != nil {
			return err
		}
		if err := schema.Load(config.Properties); err != nil {
			return err
		}
	}
	if c.GlobalIsSet("lenient") {
		config.Lenient = c.GlobalBool("lenient")
	}
	if c.GlobalIsSet("maxdepth") {
		config.MaxDepth = c.GlobalInt("maxdepth")
	}
	for flag, dst := range map[string]*string{
		"store":      &config.Store.Backend,
		"store-path": &config.Store.Path,
		"endpoint":   &config.Store.Endpoint,
		"bucket":     &config.Store.Bucket,
		"access-key": &config.Store.AccessKey,
		"secret-key": &config.Store.SecretKey,
	} {
		if c.GlobalIsSet(flag) {
			*dst = c.GlobalString(flag)
		}
	}
	if c.GlobalIsSet("secure") {
		config.Store.Secure = c.GlobalBool("secure")
	}
	return nil
}

func main() {

	app := cli.NewApp()

	app.Name = "fxics"
	app.Usage = "Decode, check and rebuild MS-OXCFXICS FastTransfer and ICS data"
	app.Version = "0.1.0"
	app.Description = `Works offline on FastTransfer streams, IDSETs and PCLs captured from Exchange,
and keeps incremental synchronization states between sessions.`

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: "",
			Usage: "The path to a config file to use",
		},
		cli.BoolFlag{
			Name:  "lenient,l",
			Usage: "Record schema violations and repair unformatted IDSETs and PCLs instead of failing. Server streams that end a GLOBSET with bytes still pushed need this",
		},
		cli.IntFlag{
			Name:  "maxdepth",
			Value: utils.DefaultMaxDepth,
			Usage: "Maximum element nesting depth",
		},
		cli.StringFlag{
			Name:  "store",
			Value: "bolt",
			Usage: "State store backend: bolt, file or minio",
		},
		cli.StringFlag{
			Name:  "store-path",
			Value: "fxics.db",
			Usage: "bolt database file, state directory or object prefix",
		},
		cli.StringFlag{
			Name:  "endpoint",
			Value: "",
			Usage: "minio endpoint, host:port",
		},
		cli.StringFlag{
			Name:  "bucket",
			Value: "fxics",
			Usage: "bolt bucket or minio bucket",
		},
		cli.StringFlag{
			Name:  "access-key",
			Value: "",
			Usage: "minio access key",
		},
		cli.StringFlag{
			Name:  "secret-key",
			Value: "",
			Usage: "minio secret key, prompted for when missing",
		},
		cli.BoolFlag{
			Name:  "secure",
			Usage: "Use TLS to talk to minio",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Be verbose and show some of the inner workings",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Print debug info, including decoder warnings",
		},
	}

	app.Before = func(c *cli.Context) error {
		if c.Bool("verbose") || c.Bool("debug") {
			utils.Init(zapcore.DebugLevel, os.Stdout, os.Stderr)
		} else {
			utils.Init(zapcore.InfoLevel, os.Stdout, os.Stderr)
		}
		return loadConfig(c)
	}

	hexFlag := cli.BoolFlag{
		Name:  "hex",
		Usage: "The input file holds hex text instead of raw bytes",
	}
	typeFlag := cli.StringFlag{
		Name:  "type,t",
		Value: "contentsSync",
		Usage: "Stream type: contentsSync, hierarchySync, state, folderContent, messageContent, attachmentContent, messageList or topFolder",
	}
	keyFlag := cli.StringFlag{
		Name:  "key",
		Value: "",
		Usage: "The state key, usually the folder being synchronized",
	}

	app.Commands = []cli.Command{
		{
			Name:      "decode",
			Aliases:   []string{"d"},
			Usage:     "decode a FastTransfer stream and print its elements",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				typeFlag,
				hexFlag,
				cli.BoolFlag{
					Name:  "sync",
					Usage: "Also decode the changes, deletions and state of a synchronization stream",
				},
			},
			Action: decode,
		},
		{
			Name:      "roundtrip",
			Usage:     "decode a stream and check that it encodes back to the same bytes",
			ArgsUsage: "<file>",
			Flags:     []cli.Flag{typeFlag, hexFlag},
			Action:    roundtrip,
		},
		{
			Name:      "chunk",
			Usage:     "split a stream into transfer buffers on valid split points",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				hexFlag,
				cli.IntFlag{
					Name:  "size,s",
					Value: 0,
					Usage: "Maximum buffer size, defaults to the configured chunk size",
				},
				cli.BoolFlag{
					Name:  "points",
					Usage: "Print every valid split point",
				},
			},
			Action: chunk,
		},
		{
			Name:      "idset",
			Usage:     "decode a serialized IDSET",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				hexFlag,
				cli.StringFlag{
					Name:  "form,f",
					Value: "REPLGUID",
					Usage: "REPLGUID or REPLID",
				},
				cli.BoolFlag{
					Name:  "ids",
					Usage: "List the MIDs (REPLID) or long term ids (REPLGUID) in the set",
				},
				cli.BoolFlag{
					Name:  "encode",
					Usage: "Print the set encoded again",
				},
			},
			Action: showIDSET,
		},
		{
			Name:  "pcl",
			Usage: "work with predecessor change lists",
			Subcommands: []cli.Command{
				{
					Name:      "compare",
					Usage:     "compare an incoming PCL with a stored one",
					ArgsUsage: "<incoming hex> <stored hex>",
					Action:    comparePCL,
				},
			},
		},
		{
			Name:  "state",
			Usage: "keep synchronization states",
			Subcommands: []cli.Command{
				{
					Name:      "save",
					Usage:     "store the state found in a state or synchronization stream",
					ArgsUsage: "<file>",
					Flags: []cli.Flag{
						keyFlag,
						hexFlag,
						cli.StringFlag{
							Name:  "type,t",
							Value: "state",
							Usage: "Stream type of the input: state, contentsSync or hierarchySync",
						},
						cli.BoolFlag{
							Name:  "merge",
							Usage: "Merge with the state already stored under the key",
						},
					},
					Action: saveState,
				},
				{
					Name:  "load",
					Usage: "write a stored state as a state stream",
					Flags: []cli.Flag{
						keyFlag,
						cli.StringFlag{
							Name:  "out,o",
							Value: "",
							Usage: "File to write, stdout when empty",
						},
						cli.BoolFlag{
							Name:  "show",
							Usage: "Print the IDSETs instead of writing the stream",
						},
					},
					Action: loadState,
				},
				{
					Name:   "delete",
					Usage:  "remove a stored state",
					Flags:  []cli.Flag{keyFlag},
					Action: deleteState,
				},
				{
					Name:   "list",
					Usage:  "list the stored state keys",
					Action: listStates,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		utils.Error.Println(err)
		os.Exit(1)
	}
}
