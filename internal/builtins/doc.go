// Package builtins provides the tools the gateway exposes in-process.
//
// # Tool Sets
//
//   - BaseTools: greeting (public), echo (requires mcp:call), and
//     calculate (public, safe arithmetic evaluator).
//   - TaskTools: long_running_task and cancel_task, wired to the shared
//     task store for progress reporting and cooperative cancellation.
//   - AdminTools: system_info, restricted to admin users holding
//     mcp:admin.
//
// Tools are declared as StaticTool tables with inline JSON schemas and
// registered at startup:
//
//	registry.RegisterAll(builtins.BaseTools()...)
//	registry.RegisterAll(builtins.TaskTools(taskStore)...)
//	registry.RegisterAll(builtins.AdminTools()...)
//
// # Cancellation
//
// long_running_task re-reads its task record before each step and stops
// as soon as the cancelled flag is set, returning a partial result with
// the progress achieved so far. cancel_task only flips the flag and
// never preempts in-flight work.
package builtins
