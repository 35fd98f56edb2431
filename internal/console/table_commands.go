package console

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"idbkit/pkg/idb"
)

// RegisterTableCommands registers the data and schema commands.
func RegisterTableCommands(reg CommandRegistrar) {
	reg.Register("/stores", Command{
		Help:    "list collections",
		Handler: handleStores,
	})
	reg.Register("/count", Command{
		Usage:   "/count <table> [index]",
		Help:    "count records",
		Handler: handleCount,
	})
	reg.Register("/get", Command{
		Usage:   "/get <table> <key> [index]",
		Help:    "show the first record at key",
		Handler: handleGet,
	})
	reg.Register("/page", Command{
		Usage:   "/page <table> <page> [size] [direction] [index]",
		Help:    "show one page of records",
		Handler: handlePage,
	})
	reg.Register("/put", Command{
		Usage:   "/put <table> <value>",
		Help:    "store a record keyed by the collection's key path or generator",
		Handler: handlePut,
	})
	reg.Register("/set", Command{
		Usage:   "/set <table> <key> <value>",
		Help:    "store a record under an explicit key",
		Handler: handleSet,
	})
	reg.Register("/del", Command{
		Usage:   "/del <table> <key>",
		Help:    "delete the record at key",
		Handler: handleDel,
	})
	reg.Register("/create", Command{
		Usage:   "/create <table> [keyPath] [auto]",
		Help:    "create a collection (upgrades the schema version)",
		Handler: handleCreate,
	})
	reg.Register("/index", Command{
		Usage:   "/index <table> <name> <keyPath> [unique] [multi]",
		Help:    "create an index (upgrades the schema version)",
		Handler: handleIndex,
	})
	reg.Register("/drop", Command{
		Usage:   "/drop <table> [index]",
		Help:    "delete a collection or one of its indexes (upgrades the schema version)",
		Handler: handleDrop,
	})
}

func usage(ctx CommandContext, text string) bool {
	ctx.Printf("Usage: %s\n", text)
	return false
}

func fail(ctx CommandContext, err error) bool {
	ctx.Printf("Error: %v\n", err)
	return false
}

// reader is what Table and Index share.
type reader interface {
	Count(ctx context.Context, query any) *idb.Request[int]
	Get(ctx context.Context, query any) *idb.Request[any]
	Pages(ctx context.Context, query any, dir idb.Direction, page, size int, call idb.PageFunc) *idb.Request[*idb.Page]
}

// openReader returns the collection, or one of its indexes when index is set.
func openReader(ctx CommandContext, table, index string) (reader, error) {
	tbl, err := ctx.Session.DB().Table(table)
	if err != nil {
		return nil, err
	}
	if index != "" {
		return tbl.Index(index), nil
	}
	return tbl, nil
}

func handleStores(ctx CommandContext) bool {
	names, err := ctx.Session.DB().StoreNames(ctx.Ctx)
	if err != nil {
		return fail(ctx, err)
	}
	if len(names) == 0 {
		ctx.Printf("Collections: (none)\n")
		return false
	}
	ctx.Printf("Collections (%d): %s\n", len(names), strings.Join(names, ", "))
	return false
}

func handleCount(ctx CommandContext) bool {
	if len(ctx.Args) < 1 {
		return usage(ctx, "/count <table> [index]")
	}
	r, err := openReader(ctx, ctx.Args[0], argAt(ctx.Args, 1))
	if err != nil {
		return fail(ctx, err)
	}
	n, err := r.Count(ctx.Ctx, nil).Wait(ctx.Ctx)
	if err != nil {
		return fail(ctx, err)
	}
	ctx.Printf("%d\n", n)
	return false
}

func handleGet(ctx CommandContext) bool {
	if len(ctx.Args) < 2 {
		return usage(ctx, "/get <table> <key> [index]")
	}
	r, err := openReader(ctx, ctx.Args[0], argAt(ctx.Args, 2))
	if err != nil {
		return fail(ctx, err)
	}
	v, err := r.Get(ctx.Ctx, ParseKey(ctx.Args[1])).Wait(ctx.Ctx)
	if err != nil {
		return fail(ctx, err)
	}
	if v == nil {
		ctx.Printf("(not found)\n")
		return false
	}
	ctx.Printf("%s\n", FormatValue(v))
	return false
}

func handlePage(ctx CommandContext) bool {
	if len(ctx.Args) < 2 {
		return usage(ctx, "/page <table> <page> [size] [direction] [index]")
	}
	page, err := strconv.Atoi(ctx.Args[1])
	if err != nil {
		return fail(ctx, errors.New("page must be a number"))
	}
	size := 0
	if s := argAt(ctx.Args, 2); s != "" {
		if size, err = strconv.Atoi(s); err != nil {
			return fail(ctx, errors.New("size must be a number"))
		}
	}
	dir, err := idb.ParseDirection(argAt(ctx.Args, 3))
	if err != nil {
		return fail(ctx, err)
	}
	r, err := openReader(ctx, ctx.Args[0], argAt(ctx.Args, 4))
	if err != nil {
		return fail(ctx, err)
	}
	_, err = r.Pages(ctx.Ctx, nil, dir, page, size, func(data []any, page, size int) {
		ctx.Printf("Page %d (size %d, %d records):\n", page, size, len(data))
		for _, v := range data {
			ctx.Printf("  %s\n", FormatValue(v))
		}
	}).Wait(ctx.Ctx)
	if err != nil {
		return fail(ctx, err)
	}
	return false
}

func handlePut(ctx CommandContext) bool {
	if len(ctx.Args) < 2 {
		return usage(ctx, "/put <table> <value>")
	}
	return write(ctx, ctx.Args[0], nil, ctx.Rest(1))
}

func handleSet(ctx CommandContext) bool {
	if len(ctx.Args) < 3 {
		return usage(ctx, "/set <table> <key> <value>")
	}
	return write(ctx, ctx.Args[0], ParseKey(ctx.Args[1]), ctx.Rest(2))
}

func write(ctx CommandContext, table string, key any, text string) bool {
	value, err := ParseValue(text)
	if err != nil {
		return fail(ctx, err)
	}
	tbl, err := ctx.Session.DB().Table(table)
	if err != nil {
		return fail(ctx, err)
	}
	stored, err := tbl.Put(ctx.Ctx, value, key).Wait(ctx.Ctx)
	if err != nil {
		return fail(ctx, err)
	}
	ctx.Printf("Stored at %s\n", FormatValue(stored))
	return false
}

func handleDel(ctx CommandContext) bool {
	if len(ctx.Args) < 2 {
		return usage(ctx, "/del <table> <key>")
	}
	tbl, err := ctx.Session.DB().Table(ctx.Args[0])
	if err != nil {
		return fail(ctx, err)
	}
	n, err := tbl.Delete(ctx.Ctx, ParseKey(ctx.Args[1])).Wait(ctx.Ctx)
	if err != nil {
		return fail(ctx, err)
	}
	ctx.Printf("Deleted %d record(s)\n", n)
	return false
}

func handleCreate(ctx CommandContext) bool {
	if len(ctx.Args) < 1 {
		return usage(ctx, "/create <table> [keyPath] [auto]")
	}
	var opts []idb.StoreOption
	for _, arg := range ctx.Args[1:] {
		if arg == "auto" {
			opts = append(opts, idb.WithAutoIncrement())
			continue
		}
		opts = append(opts, idb.WithKeyPath(parseKeyPath(arg)))
	}
	return upgrade(ctx, func(table idb.TableFactory) {
		table(ctx.Args[0]).Create(opts...)
	})
}

func handleIndex(ctx CommandContext) bool {
	if len(ctx.Args) < 3 {
		return usage(ctx, "/index <table> <name> <keyPath> [unique] [multi]")
	}
	var opts []idb.IndexOption
	for _, arg := range ctx.Args[3:] {
		switch arg {
		case "unique":
			opts = append(opts, idb.Unique())
		case "multi":
			opts = append(opts, idb.MultiEntry())
		default:
			return fail(ctx, errors.New("index options are unique and multi"))
		}
	}
	return upgrade(ctx, func(table idb.TableFactory) {
		_, _ = table(ctx.Args[0]).Create().CreateIndex(ctx.Args[1], parseKeyPath(ctx.Args[2]), opts...)
	})
}

func handleDrop(ctx CommandContext) bool {
	if len(ctx.Args) < 1 {
		return usage(ctx, "/drop <table> [index]")
	}
	return upgrade(ctx, func(table idb.TableFactory) {
		if index := argAt(ctx.Args, 1); index != "" {
			table(ctx.Args[0]).Create().DeleteIndex(index)
			return
		}
		_ = table(ctx.Args[0]).Delete()
	})
}

func upgrade(ctx CommandContext, fn idb.UpgradeFunc) bool {
	if err := ctx.Session.Upgrade(ctx.Ctx, fn); err != nil {
		return fail(ctx, err)
	}
	ctx.Printf("Schema is now at version %d\n", ctx.Session.DB().Version())
	return false
}

// parseKeyPath reads "a.b" as a key path and "a,b" as an array key path.
func parseKeyPath(s string) idb.KeyPath {
	if strings.Contains(s, ",") {
		return idb.Paths(strings.Split(s, ",")...)
	}
	return idb.Path(s)
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
