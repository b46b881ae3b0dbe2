// Package track reports which entries of a directory tree were added,
// removed, changed or moved between two polls.
//
// Each tick lists the tree, compares it with the previous snapshot and calls
// the Handler once per change, removals first, then additions, content
// changes and moves. A file that disappears while a new file with the same
// content appears is reported as moved.
//
// Basic usage
//
//	t, err := track.New(track.Config{Root: "/path/to/watch", Interval: time.Second})
//	if err != nil {
//		return err
//	}
//	t.Tick() // one poll, changes go to stdout
//
// With a custom handler
//
//	handler := track.HandlerFromFunc(func(event track.Event, item *track.Item) {
//		fmt.Printf("%s: %s\n", event, item.Path)
//	})
//	err := track.Run(ctx, track.Config{Root: dir, Handler: handler}, nil)
//
// Persisting state between runs
//
//	store := track.NewFileStore(track.DefaultStateFile, nil)
//	err := track.Run(ctx, track.Config{Root: dir, Threaded: true}, store)
//
// Formatting and running commands
//
//	track.FormatHandler(dir, "{event}: {} at {time}", os.Stdout)
//	track.ExecHandler(ctx, dir, "echo {event} {abs}", os.Stdout, os.Stderr)
package track
