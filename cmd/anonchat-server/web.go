package main

import (
    "fmt"
    "io"
    "net"
    "net/http"
    "net/url"
    "path"

    anonchat "github.com/Art444666/anonchat"
    "github.com/sirupsen/logrus"
)

type server struct {
    // The server's HTTP server.
    httpServer *http.Server
    // The chat server.
    chat anonchat.ChatServer
    // The WebSocket upgrader.
    upgrader *connUpgrader
    // The front end's logger.
    log *logrus.Logger
}

// remoteIP strip the port from the request's remote address. The address
// is the user's identity key, so it must be stable across requests.
func remoteIP(req *http.Request) string {
    host, _, err := net.SplitHostPort(req.RemoteAddr)
    if err != nil {
        return req.RemoteAddr
    }
    return host
}

// ServeHTTP is called by Go's http package whenever a new HTTP request arrives.
func (s *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
    uri := cleanURL(req.URL)
    addr := remoteIP(req)

    s.log.WithFields(logrus.Fields {
        "addr": addr,
        "method": req.Method,
        "uri": uri,
    }).Info("request")

    switch uri {
    case "":
        s.serveIndex(w, addr)
    case "register":
        if req.Method == http.MethodPost {
            s.serveRegister(w, req, addr)
        } else {
            s.serveIndex(w, addr)
        }
    case "token":
        s.serveToken(w, addr)
    case "ws":
        s.serveWs(w, req, addr)
    case "admin":
        s.serveAdmin(w, addr)
    default:
        httpTextReply(http.StatusNotFound, "404 - Nothing to see here...", w)
    }
}

// serveIndex route the user to the page matching its current state:
// blocked, admin, registered or unregistered.
func (s *server) serveIndex(w http.ResponseWriter, addr string) {
    nick, registered := s.chat.Resolve(addr)

    if s.chat.IsBlocked(addr) && nick != s.chat.AdminNick() {
        serveBlockPage(w, addr, s.chat.BlockReason())
        return
    }

    if registered && nick == s.chat.AdminNick() {
        serveAdminPage(w, nick)
        return
    }

    if registered {
        serveChatPage(w, nick)
        return
    }

    serveRegisterPage(w, addr, "")
}

// serveRegister handle the nickname registration form.
func (s *server) serveRegister(w http.ResponseWriter, req *http.Request,
        addr string) {

    if s.chat.IsBlocked(addr) {
        serveBlockPage(w, addr, s.chat.BlockReason())
        return
    }

    nickname := req.FormValue("nickname")

    _, err := s.chat.Register(addr, nickname)
    if err != nil {
        serveRegisterPage(w, addr, err.Error())
        return
    }

    http.Redirect(w, req, "/", http.StatusSeeOther)
}

// serveToken issue a one-time connect token for the resolved identity.
func (s *server) serveToken(w http.ResponseWriter, addr string) {
    if s.chat.IsBlocked(addr) {
        httpTextReply(http.StatusForbidden, s.chat.BlockReason(), w)
        return
    }

    tk, err := s.chat.RequestToken(addr)
    if err != nil {
        httpTextReply(http.StatusInternalServerError,
                fmt.Sprintf("Couldn't create the token: %+v", err), w)
        return
    }

    httpTextReply(http.StatusOK, tk, w)
}

// serveWs upgrade the request and hand the connection to the chat server.
//
// The token may be sent either as a 'token' query parameter or in a
// 'X-ChatToken' cookie.
func (s *server) serveWs(w http.ResponseWriter, req *http.Request, addr string) {
    tk := req.URL.Query().Get("token")
    if len(tk) == 0 {
        for _, c := range req.Cookies() {
            if c.Name == "X-ChatToken" {
                tk = c.Value
                break
            }
        }
    }
    if len(tk) == 0 {
        httpTextReply(http.StatusBadRequest, "Couldn't find the supplied token", w)
        return
    }

    conn, err := s.upgrader.newConn(w, req)
    if err != nil {
        httpTextReply(http.StatusInternalServerError,
                fmt.Sprintf("Couldn't upgrade the connection: %+v", err), w)
        return
    }

    // On success, the upgraded request is handled by the chat server
    // until the remote endpoint leaves.
    err = s.chat.ConnectAndWait(tk, conn)
    if err != nil {
        // Can't do HTTP anymore as the connection was upgraded to a
        // websocket.
        conn.Close()
        s.log.WithFields(logrus.Fields {
            "addr": addr,
            "error": err,
        }).Warn("couldn't connect to the chat")
    }
}

// serveAdmin serve the admin panel.
//
// The page itself is harmless: every privileged operation still requires
// the capability issued by `admin_login` over the event channel.
func (s *server) serveAdmin(w http.ResponseWriter, addr string) {
    nick, _ := s.chat.Resolve(addr)
    serveAdminPage(w, nick)
}

// cleanURL so everything is properly escaped/encoded and so it may be
// split into each of its components.
func cleanURL(uri *url.URL) string {
    // Normalize and strip the URL from its leading prefix (and slash)
    resUrl := path.Clean(uri.EscapedPath())
    if len(resUrl) > 0 && resUrl[0] == '/' {
        resUrl = resUrl[1:]
    } else if len(resUrl) == 1 && resUrl[0] == '.' {
        // Clean converts an empty path into a single "."
        resUrl = ""
    }

    return resUrl
}

// httpTextReply send a simple HTTP response as a plain text.
func httpTextReply(status int, msg string, w http.ResponseWriter) {
    w.Header().Set("Content-Type", "text/plain")
    w.WriteHeader(status)

    for data := []byte(msg); len(data) > 0; {
        n, err := w.Write(data)
        if err != nil {
            return
        }
        data = data[n:]
    }
}

// Close the running web server and clean up resources.
func (s *server) Close() error {
    if s.httpServer != nil {
        s.httpServer.Close()
        s.httpServer = nil
    }
    if s.chat != nil {
        s.chat.Close()
        s.chat = nil
    }

    return nil
}

// runWeb start the web server in a new goroutine.
func runWeb(conf Config, log *logrus.Logger) io.Closer {
    var srv server

    srv.log = log
    srv.httpServer = &http.Server {
        Addr: fmt.Sprintf("%s:%d", conf.IP, conf.Port),
        Handler: &srv,
    }

    chatConf := anonchat.GetDefaultServerConf()
    chatConf.AdminPass = conf.AdminPass
    chatConf.AdminNick = conf.AdminNick
    chatConf.Logger = log
    srv.chat = anonchat.NewServerConf(chatConf)

    srv.upgrader = newConnUpgrader(conf, log)

    go func() {
        log.Info("waiting for connections")
        srv.httpServer.ListenAndServe()
    } ()

    return &srv
}
