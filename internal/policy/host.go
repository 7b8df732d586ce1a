package policy

// PreActionHook is called by the host before every tool call.
type PreActionHook func(action Action) Decision

// BootstrapHook is called by the host when a session starts.
type BootstrapHook func(ctx BootstrapContext)

// BootstrapContext lets a bootstrap hook contribute files to the session.
type BootstrapContext interface {
	AddFile(name, content string)
}

// Host is the narrow surface the engine needs from the agent platform.
// Hosts that cannot support one of the hooks implement it as a no-op.
type Host interface {
	RegisterPreActionHook(fn PreActionHook)
	RegisterBootstrapHook(fn BootstrapHook)
}
