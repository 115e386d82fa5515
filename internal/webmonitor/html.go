package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Label Annotator Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; font-family: system-ui, sans-serif; background: #111; color: #eee; }
        .app { max-width: 1280px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 12px; }
        .title { font-size: 20px; font-weight: 600; }
        .badge { padding: 4px 10px; border-radius: 12px; font-size: 12px; background: #444; }
        .badge.running { background: #1b5e20; }
        .badge.awaiting_backend { background: #8d6e00; }
        .badge.stopped { background: #7f0000; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
        .panel { background: #1c1c1c; border-radius: 8px; padding: 12px; }
        .panel h2 { margin: 0 0 4px; font-size: 16px; }
        .panel-subtitle { margin: 0 0 10px; font-size: 12px; color: #999; }
        #video-panel { position: relative; background: #000; }
        #stream { width: 100%; height: auto; display: block; }
        .stat-value { font-size: 24px; font-weight: 600; }
        .recognition { border-left: 4px solid #666; padding: 6px 8px; margin-bottom: 6px; background: #242424; }
        .recognition .cls { font-size: 12px; color: #aaa; }
        .recognition .text { white-space: pre-wrap; font-family: monospace; }
        .recognition.error .text { color: #ff8a80; }
        .recognition.pending .text { color: #999; }
        .muted { color: #777; font-size: 13px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">Label Annotator Monitor</div>
            <span class="badge" id="state-badge">connecting...</span>
        </div>

        <div class="grid">
            <div class="panel">
                <h2>Live Feed</h2>
                <p class="panel-subtitle">検出結果を合成したMJPEGストリーム</p>
                <div id="video-panel">
                    <img id="stream" src="/stream" alt="Annotated live stream">
                </div>
                <p class="muted" id="state-error"></p>
            </div>

            <div>
                <div class="panel" style="margin-bottom:16px;">
                    <h2>Detection FPS</h2>
                    <span class="stat-value" id="fps">--</span>
                    <p class="muted" id="detections">--</p>
                </div>
                <div class="panel">
                    <h2>Recognized Text</h2>
                    <p class="panel-subtitle">ラベル領域の文字認識結果</p>
                    <div id="recognitions"><p class="muted">まだ認識結果はありません。</p></div>
                </div>
            </div>
        </div>
    </div>

    <script>
        const badge = document.getElementById('state-badge');
        const stateError = document.getElementById('state-error');
        const fpsEl = document.getElementById('fps');
        const detectionsEl = document.getElementById('detections');
        const recognitionsEl = document.getElementById('recognitions');

        function renderState(payload) {
            badge.textContent = payload.state;
            badge.className = 'badge ' + payload.state;
            stateError.textContent = payload.error || '';
        }

        function renderRecognitions(set) {
            recognitionsEl.innerHTML = '';
            if (!set.entries || set.entries.length === 0) {
                recognitionsEl.innerHTML = '<p class="muted">まだ認識結果はありません。</p>';
                return;
            }
            for (const entry of set.entries) {
                const div = document.createElement('div');
                div.className = 'recognition ' + entry.status;
                div.style.borderLeftColor = entry.detection.color || '#666';
                if (entry.confidence) {
                    div.title = 'Confidence: ' + entry.confidence + '%';
                }
                const cls = document.createElement('div');
                cls.className = 'cls';
                cls.textContent = entry.detection.class;
                const text = document.createElement('div');
                text.className = 'text';
                text.textContent = entry.message;
                div.appendChild(cls);
                div.appendChild(text);
                recognitionsEl.appendChild(div);
            }
        }

        const events = new EventSource('/api/events');
        events.addEventListener('state', (e) => renderState(JSON.parse(e.data)));
        events.addEventListener('fps', (e) => {
            fpsEl.textContent = JSON.parse(e.data).fps.toFixed(1);
        });
        events.addEventListener('detections', (e) => {
            const result = JSON.parse(e.data);
            detectionsEl.textContent = result.detections.length + ' detection(s) in frame #' + result.seq;
        });
        events.addEventListener('recognitions', (e) => renderRecognitions(JSON.parse(e.data)));
        events.onerror = () => {
            badge.textContent = 'disconnected';
            badge.className = 'badge';
        };
    </script>
</body>
</html>
`
