package main

import (
    "html/template"
    "net/http"
)

// The pages are deliberately tiny: the front end only exists to resolve
// identities and to drive the event channel; everything interesting
// happens inside the anonchat package.

var registerTemplate = template.Must(template.New("register").Parse(`<html>
    <head>
        <title> AnonChat - Registration </title>
        <meta charset="utf-8" name="viewport" />
    </head>
    <body>
        <h1> Registration </h1>
        <p> Your IP: <b>{{ .IP }}</b> </p>
        <form method="post" action="/register">
            <label> Pick a nickname </label>
            <input type="text" name="nickname" maxlength="24" required />
            {{ if .Error }}<div class="err">{{ .Error }}</div>{{ end }}
            <button type="submit"> Continue </button>
        </form>
    </body>
</html>`))

var blockTemplate = template.Must(template.New("block").Parse(`<html>
    <head>
        <title> AnonChat - Blocked </title>
        <meta charset="utf-8" name="viewport" />
    </head>
    <body>
        <h1> Access blocked </h1>
        <p> Your IP: <b>{{ .IP }}</b> </p>
        <p> {{ .Reason }} </p>
    </body>
</html>`))

// serveRegisterPage render the registration form, optionally with the
// error of a previous attempt.
func serveRegisterPage(w http.ResponseWriter, ip, errText string) {
    w.Header().Set("Content-Type", "text/html")
    registerTemplate.Execute(w, struct {
        IP string
        Error string
    } { IP: ip, Error: errText })
}

// serveBlockPage render the page shown to blocked addresses.
func serveBlockPage(w http.ResponseWriter, ip, reason string) {
    w.Header().Set("Content-Type", "text/html")
    blockTemplate.Execute(w, struct {
        IP string
        Reason string
    } { IP: ip, Reason: reason })
}

// serveChatPage render the chat client.
func serveChatPage(w http.ResponseWriter, nick string) {
    w.Header().Set("Content-Type", "text/html")
    w.WriteHeader(http.StatusOK)
    w.Write([]byte(chatPage))
}

// serveAdminPage render the admin panel.
func serveAdminPage(w http.ResponseWriter, nick string) {
    w.Header().Set("Content-Type", "text/html")
    w.WriteHeader(http.StatusOK)
    w.Write([]byte(adminPage))
}

const pageScript = `
        var sock = null;

        function send(name, data) {
            sock.send(JSON.stringify({"event": name, "data": data}));
        }

        function connect(onEvent) {
            fetch("/token").then(function(rsp) {
                return rsp.text();
            }).then(function(tk) {
                var proto = (location.protocol == "https:" ? "wss://" : "ws://");
                sock = new WebSocket(proto + location.host + "/ws?token=" + tk);
                sock.onmessage = function(e) {
                    onEvent(JSON.parse(e.data));
                };
            });
        }

        function appendLine(id, txt) {
            var el = document.createElement("p");
            el.textContent = txt;
            document.getElementById(id).appendChild(el);
        }
`

const chatPage = `<html>
    <head>
        <title> AnonChat </title>
        <meta charset="utf-8" name="viewport" />

        <script>` + pageScript + `
        function onEvent(ev) {
            if (ev.event == "room_list") {
                document.getElementById("rooms").textContent = "";
                for (var i in ev.data) {
                    appendLine("rooms", ev.data[i]);
                }
            } else if (ev.event == "userlist") {
                document.getElementById("users").textContent = "";
                appendLine("users", "owner: " + ev.data.owner);
                for (var i in ev.data.users) {
                    appendLine("users", ev.data.users[i]);
                }
            } else if (ev.event == "message") {
                appendLine("messages", ev.data);
            } else if (ev.event == "room_joined") {
                appendLine("messages", "--- joined " + ev.data + " ---");
            } else if (ev.event == "room_error") {
                appendLine("messages", "!!! " + ev.data);
            } else if (ev.event == "redirect_admin") {
                location.href = ev.data;
            } else if (ev.event == "admin_success" || ev.event == "admin_error") {
                appendLine("messages", ev.data);
            }
        }

        function createRoom() {
            send("create_room", {
                "room": document.getElementById("room").value,
                "password": document.getElementById("password").value
            });
        }

        function joinRoom() {
            send("join_room", {
                "room": document.getElementById("room").value,
                "password": document.getElementById("password").value
            });
        }

        function sendMessage() {
            var input = document.getElementById("input");
            send("message", input.value);
            input.value = "";
        }

        function adminLogin() {
            send("admin_login", {
                "password": document.getElementById("adminpass").value
            });
        }

        window.onload = function() { connect(onEvent); };
        </script>
    </head>
    <body>
        <h1> AnonChat </h1>
        <div>
            <h3> Rooms </h3>
            <div id="rooms"></div>
            <input type="text" id="room" placeholder="room" />
            <input type="text" id="password" placeholder="password" />
            <button onclick="createRoom()"> Create </button>
            <button onclick="joinRoom()"> Join </button>
        </div>
        <div>
            <h3> Users </h3>
            <div id="users"></div>
        </div>
        <div>
            <h3> Messages </h3>
            <div id="messages"></div>
            <input type="text" id="input" placeholder="message or /ban name" />
            <button onclick="sendMessage()"> Send </button>
        </div>
        <div>
            <input type="password" id="adminpass" placeholder="admin password" />
            <button onclick="adminLogin()"> Admin login </button>
        </div>
    </body>
</html>`

const adminPage = `<html>
    <head>
        <title> AnonChat - Admin </title>
        <meta charset="utf-8" name="viewport" />

        <script>` + pageScript + `
        function onEvent(ev) {
            if (ev.event == "admin_success" || ev.event == "admin_error") {
                appendLine("log", ev.data);
            } else if (ev.event == "all_users") {
                document.getElementById("users").textContent = "";
                for (var i in ev.data) {
                    appendLine("users", ev.data[i].ip + " - " + ev.data[i].nickname);
                }
            } else if (ev.event == "room_list") {
                document.getElementById("rooms").textContent = "";
                for (var i in ev.data) {
                    appendLine("rooms", ev.data[i]);
                }
            }
        }

        function adminLogin() {
            send("admin_login", {
                "password": document.getElementById("adminpass").value
            });
        }

        function banIP() {
            send("admin_ban", {
                "ip": document.getElementById("ip").value,
                "reason": document.getElementById("reason").value
            });
        }

        function setBlock(enabled) {
            send("admin_global_block", {
                "enabled": enabled,
                "reason": document.getElementById("reason").value
            });
        }

        function deleteRoom() {
            send("admin_ban_room", {
                "room": document.getElementById("room").value
            });
        }

        function listUsers() {
            send("get_all_users", null);
        }

        window.onload = function() { connect(onEvent); };
        </script>
    </head>
    <body>
        <h1> Admin panel </h1>
        <div>
            <input type="password" id="adminpass" placeholder="admin password" />
            <button onclick="adminLogin()"> Login </button>
        </div>
        <div>
            <input type="text" id="ip" placeholder="ip" />
            <input type="text" id="reason" placeholder="reason" />
            <button onclick="banIP()"> Ban IP </button>
            <button onclick="setBlock(true)"> Enable global block </button>
            <button onclick="setBlock(false)"> Disable global block </button>
        </div>
        <div>
            <input type="text" id="room" placeholder="room" />
            <button onclick="deleteRoom()"> Delete room </button>
            <button onclick="listUsers()"> List users </button>
        </div>
        <div id="rooms"></div>
        <div id="users"></div>
        <div id="log"></div>
    </body>
</html>`
