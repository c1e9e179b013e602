// Package process supervises long-running child processes.
//
// The mesh provisioner uses it to run graylogic-meshd, the radio daemon
// that owns the Bluetooth adapter, when the daemon is configured as
// managed. A Manager starts the binary in its own process group, logs its
// output line by line, polls an optional health check, and restarts it
// with exponential backoff after unexpected exits.
//
// A run longer than StableThreshold resets the restart counter, so
// MaxRestartAttempts limits crash loops rather than lifetime restarts.
// Exit errors implementing RecoverableError can opt out of restarting.
//
// Example:
//
//	mgr := process.NewManager(process.Config{
//	    Name:               "meshd",
//	    Binary:             "/usr/bin/graylogic-meshd",
//	    Args:               []string{"--adapter", "hci0"},
//	    RestartOnFailure:   true,
//	    RestartDelay:       5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
