package main

import (
    "os"
    "os/signal"

    "github.com/sirupsen/logrus"
)

// startServer and configure its signal handler.
func startServer(log *logrus.Logger) {
    conf := loadConfig(log)
    if conf.Debug {
        log.SetLevel(logrus.DebugLevel)
    }

    intHndlr := make(chan os.Signal, 1)
    signal.Notify(intHndlr, os.Interrupt)

    closer := runWeb(conf, log)

    <-intHndlr
    log.Info("exiting...")
    closer.Close()
}

func main() {
    log := logrus.New()

    defer func() {
        if r := recover(); r != nil {
            log.Fatalf("Application panicked! %+v", r)
        }
    } ()

    startServer(log)
}
