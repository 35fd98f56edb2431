// Package idb is an IndexedDB-style object store on top of an embedded
// bbolt file.
//
// A Factory hands out Database handles by name and version. Opening a handle
// at a version above the stored one runs an UpgradeFunc, which creates and
// deletes collections and indexes through schema editors:
//
//	f := idb.NewFactory(dir)
//	db := f.Database("library", 1)
//	db.Open(ctx, func(table idb.TableFactory) {
//		books := table("books").Create(idb.WithKeyPath(idb.Path("isbn")))
//		books.CreateIndex("by_author", idb.Path("author"))
//	})
//	books, _ := db.Table("books")
//	books.Put(ctx, map[string]any{"isbn": "0-13", "author": "Kernighan"}, nil)
//	books.Pages(ctx, nil, idb.Next, 2, 10, func(data []any, page, size int) {
//		// second page of ten books in key order
//	})
//
// Every operation runs on its own goroutine and transaction and returns a
// Request; use Wait, or attach OnSuccess and OnError observers. Failures
// are also passed to the factory's ErrorHandler.
package idb
