package serve

import "net/http"

func serveClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(`Content-Type`, `text/javascript; charset=utf-8`)
	w.Header().Set(`Cache-Control`, `no-cache`)
	_, _ = w.Write([]byte(client))
}

// client prefers Server-Sent Events and falls back to a WebSocket.
const client = `(function () {
  'use strict';
  function inject(paths) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var stamp = Date.now();
    for (var i = 0; i < links.length; i++) {
      var href = links[i].getAttribute('href');
      if (!href) continue;
      var bare = href.split('?')[0];
      for (var j = 0; j < paths.length; j++) {
        if (bare === paths[j] || bare.endsWith(paths[j])) {
          links[i].setAttribute('href', bare + '?press=' + stamp);
          break;
        }
      }
    }
  }
  function handle(method, params) {
    if (method === 'inject' && params && params.paths) {
      inject(params.paths);
    } else {
      window.location.reload();
    }
  }
  if (window.EventSource) {
    var events = new EventSource('/_press/events');
    ['reload', 'inject'].forEach(function (method) {
      events.addEventListener(method, function (evt) { handle(method, JSON.parse(evt.data)); });
    });
    return;
  }
  var scheme = window.location.protocol === 'https:' ? 'wss://' : 'ws://';
  var ws = new WebSocket(scheme + window.location.host + '/_press/ws');
  ws.onmessage = function (evt) {
    var msg = JSON.parse(evt.data);
    handle(msg.method, msg.params);
  };
})();
`
