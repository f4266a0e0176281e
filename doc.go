// Package elink is a LAN-side client library for discovering, connecting
// to, commanding, and observing 3D printers over the local network.
//
// Each printer speaks one of several vendor protocols — MQTT-framed JSON
// for the Elegoo FDM families, WebSocket JSON-RPC for Moonraker/Klipper —
// but callers see one uniform request/response/event surface regardless
// of which protocol is actually on the wire. A Session owns the transport
// (Protocol), the wire-format translation (MessageAdapter), and an
// optional file-transfer channel for one printer; a Registry owns a set
// of sessions keyed by printer id.
package elink
