// Package process supervises a fixed set of locally spawned OS processes.
//
// A Registry holds one Record per configured label for the whole session.
// The Supervisor drives each record through
//
//	Stopped(0) -> Starting(1) -> Running(2) -> Stopping(3) -> Stopped(0)
//
// with Errored(4) reached from Starting when the spawn fails. Stopping is
// entered as soon as the OS process is reaped; Stopped follows once its
// output has drained, or after the drain timeout when a descendant keeps
// the pipes open. Every
// transition is delivered synchronously to the primary status subscriber
// (OnStatusChange) and to any observers added with Subscribe.
//
// When a record goes quiescent without a Kill, the restart policy applies:
// while triesUsed < maxTries (or maxTries < 0) the supervisor increments
// triesUsed, waits triesSleep and starts it again. Once the budget is spent
// the record stays put and StateExhausted(5) is broadcast.
//
// Children run in their own process group; Kill signals the group. stdout
// and stderr are captured line by line and appended to the record's log
// file, stderr lines carrying an error marker.
//
//	sup := process.NewSupervisor(process.Options{
//		Registry:  process.NewRegistry(defs),
//		LogWriter: logfile.NewWriter(),
//		OnStatusChange: func(label string, state process.State) {
//			fmt.Println(label, state)
//		},
//	})
//	sup.StartAll(ctx)
//	defer sup.Shutdown(ctx)
package process
