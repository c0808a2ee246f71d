// Package tools maintains the registry of procedures exposed over MCP.
//
// # Registration
//
// Every exposable operation implements the Tool interface (Name, Describe,
// Invoke) and is registered explicitly at startup; there is no runtime
// reflection. StaticTool supports declarative registration from a
// descriptor plus handler function:
//
//	registry.Register(&tools.StaticTool{
//	    Definition: tools.Descriptor{
//	        Name:        "echo",
//	        Description: "Echo a message back",
//	        InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
//	        Scopes:      &auth.ScopeRequirement{AnyOf: []string{"mcp:call"}},
//	    },
//	    Handler: echoHandler,
//	})
//
// # Extraction
//
// Extract returns sanitized descriptors for all enabled tools. Descriptions
// are sanitized and schemas compiled once at registration; a schema that
// fails to compile falls back to the permissive empty object schema and is
// logged; one malformed tool never aborts the rest of the registry.
//
// # Validation
//
// Call arguments are validated against each tool's compiled JSON schema
// (santhosh-tekuri/jsonschema). Violations carry field-level detail in
// ValidationError.
//
// # Disable State
//
// The schema drift monitor can take a tool out of service with Disable;
// a disabled tool is invisible to discovery and uncallable until an
// operator calls Enable.
package tools
