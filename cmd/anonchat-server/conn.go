package main

import (
    "net/http"
    "time"

    anonchat "github.com/Art444666/anonchat"
    gobwas_ws_conn "github.com/Art444666/anonchat/gobwas-ws-conn"
    gorilla_ws_conn "github.com/Art444666/anonchat/gorilla-ws-conn"
    gows "github.com/gorilla/websocket"
    "github.com/sirupsen/logrus"
)

// How long a remote connection may stay idle.
const timeout = time.Minute

// ignoreOrigin accepts connections from any source.
func ignoreOrigin(r *http.Request) bool {
    return true
}

// connUpgrader upgrade HTTP requests into chat connections, with the
// WebSocket library picked by the configuration.
type connUpgrader struct {
    upgrader gows.Upgrader
    useGobwas bool
    log *logrus.Logger
}

// newConn upgrade a HTTP connection to a Chat Connection.
func (cu *connUpgrader) newConn(w http.ResponseWriter,
        req *http.Request) (anonchat.Conn, error) {

    if cu.useGobwas {
        return gobwas_ws_conn.NewConn(w, req)
    }
    return gorilla_ws_conn.NewConn(cu.upgrader, timeout, cu.log, w, req)
}

// newConnUpgrader configure the upgrader from `conf`.
func newConnUpgrader(conf Config, log *logrus.Logger) *connUpgrader {
    cu := &connUpgrader {
        upgrader: gows.Upgrader {
            ReadBufferSize: conf.ReadSize,
            WriteBufferSize: conf.WriteSize,
        },
        useGobwas: conf.Transport == "gobwas",
        log: log,
    }
    if conf.IgnoreOrigin {
        cu.upgrader.CheckOrigin = ignoreOrigin
    }

    return cu
}
