package server

// clientScript connects to the reload socket, reloads the page on
// full_reload, re-fetches stylesheets on css_reload and reloads once when
// it reconnects to a different watch session.
const clientScript = `(function () {
  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var session = null;

  function reloadStyles() {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var url = new URL(links[i].href, location.href);
      url.searchParams.set("wsbuild", Date.now());
      links[i].href = url.toString();
    }
  }

  function connect() {
    var ws = new WebSocket(scheme + location.host + "` + SocketPath + `");
    ws.onmessage = function (event) {
      var message = JSON.parse(event.data);
      switch (message.type) {
        case "connected":
          if (session !== null && session !== message.session) {
            location.reload();
          }
          session = message.session;
          break;
        case "full_reload":
          location.reload();
          break;
        case "css_reload":
          reloadStyles();
          break;
      }
    };
    ws.onclose = function () {
      setTimeout(connect, 2000);
    };
  }

  connect();
})();
`
