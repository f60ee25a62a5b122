// Package connectors feeds documents into the engine from external
// locations. Each connector knows how to track one kind of source; the
// filesystem connector watches directories and mirrors file changes into
// the knowledge base.
package connectors
