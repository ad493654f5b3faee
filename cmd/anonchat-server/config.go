package main

import (
    "flag"

    "github.com/sirupsen/logrus"
    "github.com/spf13/viper"
)

// Config for the front end, loaded by viper from an optional JSON file,
// the environment (prefixed with ANONCHAT_) and built-in defaults.
type Config struct {
    // IP on which the server will accept connections.
    IP string
    // Port on which the server will accept connections.
    Port int
    // AdminPass accepted by `admin_login`.
    AdminPass string
    // AdminNick reserved for the administrator.
    AdminNick string
    // ReadSize allocated for the WebSocket read buffer.
    ReadSize int
    // WriteSize allocated for the WebSocket write buffer.
    WriteSize int
    // IgnoreOrigin and accept connections from any source (mostly for
    // development).
    IgnoreOrigin bool
    // Transport selects the WebSocket library: "gorilla" or "gobwas".
    Transport string
    // Debug enables debug logging.
    Debug bool
}

// loadConfig from the `-config` file (if given), the environment and the
// defaults.
func loadConfig(log *logrus.Logger) Config {
    configFile := flag.String("config", "",
            "JSON file with the configuration options")
    flag.Parse()

    viper.SetDefault("ip", "0.0.0.0")
    viper.SetDefault("port", 10000)
    viper.SetDefault("adminPass", "1234")
    viper.SetDefault("adminNick", "Administrator")
    viper.SetDefault("readSize", 1024)
    viper.SetDefault("writeSize", 1024)
    viper.SetDefault("ignoreOrigin", true)
    viper.SetDefault("transport", "gorilla")
    viper.SetDefault("debug", false)

    viper.SetEnvPrefix("anonchat")
    viper.AutomaticEnv()

    if len(*configFile) > 0 {
        viper.SetConfigFile(*configFile)
        viper.SetConfigType("json")
        err := viper.ReadInConfig()
        if err != nil {
            log.WithError(err).Fatal("couldn't read the configuration file")
        }
    }

    conf := Config {
        IP: viper.GetString("ip"),
        Port: viper.GetInt("port"),
        AdminPass: viper.GetString("adminPass"),
        AdminNick: viper.GetString("adminNick"),
        ReadSize: viper.GetInt("readSize"),
        WriteSize: viper.GetInt("writeSize"),
        IgnoreOrigin: viper.GetBool("ignoreOrigin"),
        Transport: viper.GetString("transport"),
        Debug: viper.GetBool("debug"),
    }

    log.WithFields(logrus.Fields {
        "ip": conf.IP,
        "port": conf.Port,
        "transport": conf.Transport,
        "ignoreOrigin": conf.IgnoreOrigin,
    }).Info("starting server")

    return conf
}
