package viewer

// indexHTML is the bundled UI shell: it fetches /data.json, renders a
// minimal request list, and reloads on an artifact_updated WebSocket
// message. Graph layout, diffing, and theming are presentation concerns
// left to a real UI bundle — not part of this surface.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>llmtap viewer</title>
  <style>
    body { font-family: -apple-system, sans-serif; margin: 2rem; background: #111; color: #ddd; }
    h1 { font-size: 1.1rem; color: #8ab4f8; }
    .request { border: 1px solid #333; border-radius: 6px; padding: 0.75rem; margin-bottom: 0.5rem; }
    .model { color: #9aa0a6; font-size: 0.85rem; }
    #status { color: #6a6; font-size: 0.8rem; }
  </style>
</head>
<body>
  <h1>llmtap</h1>
  <div id="status">connecting…</div>
  <div id="requests"></div>
  <script>
    async function load() {
      const res = await fetch('/data.json');
      const data = await res.json();
      const el = document.getElementById('requests');
      el.innerHTML = '';
      for (const r of data.requests) {
        const div = document.createElement('div');
        div.className = 'request';
        div.innerHTML = '<div class="model">' + r.model + ' — ' + r.id + '</div>';
        el.appendChild(div);
      }
    }
    function connect() {
      const proto = location.protocol === 'https:' ? 'wss' : 'ws';
      const ws = new WebSocket(proto + '://' + location.host + '/ws');
      ws.onopen = () => { document.getElementById('status').textContent = 'live'; };
      ws.onclose = () => { document.getElementById('status').textContent = 'disconnected'; setTimeout(connect, 2000); };
      ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        if (msg.type === 'artifact_updated') load();
      };
    }
    load();
    connect();
  </script>
</body>
</html>
`
