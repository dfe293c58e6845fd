// Netserver hosts the network registry and training job manager behind an
// HTTP API. Clients create feedforward networks, submit background training
// jobs against the MNIST digits (or a synthetic set with -synthetic) and
// follow per-epoch progress over the /ws websocket.
package main
