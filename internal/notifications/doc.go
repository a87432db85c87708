// Package notifications delivers session outcomes via ntfy push.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. The pipeline
// depends only on the Service interface, so alternative transports can be
// added without touching orchestration code.
package notifications
