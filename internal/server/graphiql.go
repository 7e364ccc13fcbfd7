package server

import (
	"context"
	"html/template"
	"net/http"
	"time"

	config "github.com/hanpama/gqlws/internal/config"
	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
)

var graphiqlTemplate = template.Must(template.New("graphiql").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8" />
  <title>GraphiQL</title>
  <style>body { margin: 0; height: 100vh; } #graphiql { height: 100vh; }</style>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@2.4.7/graphiql.min.css" />
  <script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/subscriptions-transport-ws@0.9.18/browser/client.js"></script>
  <script crossorigin src="https://unpkg.com/graphiql@2.4.7/graphiql.min.js"></script>
</head>
<body>
  <div id="graphiql">Loading...</div>
  <script>
    var endpoint = {{.Endpoint}};
    var subscriptions = {{.SubscriptionsEndpoint}};
    var options = { url: endpoint };
    if (subscriptions) {
      var scheme = window.location.protocol === "https:" ? "wss://" : "ws://";
      options.legacyClient = new window.SubscriptionsTransportWs.SubscriptionClient(
        scheme + window.location.host + subscriptions, { reconnect: true });
    }
    ReactDOM.createRoot(document.getElementById("graphiql")).render(
      React.createElement(GraphiQL, {
        fetcher: GraphiQL.createFetcher(options),
        defaultQuery: {{.DefaultQuery}},
        variables: {{.DefaultVariables}},
        headers: {{.DefaultHeaders}},
        defaultEditorToolsVisibility: true
      })
    );
  </script>
</body>
</html>
`))

type graphiqlData struct {
	Endpoint              string
	SubscriptionsEndpoint string
	DefaultQuery          string
	DefaultVariables      string
	DefaultHeaders        string
}

func renderGraphiQL(ctx context.Context, w http.ResponseWriter, r *http.Request, resolved config.Resolved) {
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Route: events.RouteGraphiQL, Request: r})

	endpoint := resolved.Path
	if endpoint == "" {
		endpoint = r.URL.Path
	}
	data := graphiqlData{
		Endpoint:              endpoint,
		SubscriptionsEndpoint: resolved.SubscriptionsPath,
		DefaultQuery:          resolved.GraphiQL.DefaultQuery,
		DefaultVariables:      resolved.GraphiQL.DefaultVariables,
		DefaultHeaders:        resolved.GraphiQL.DefaultHeaders,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	status := http.StatusOK
	if err := graphiqlTemplate.Execute(w, data); err != nil {
		status = http.StatusInternalServerError
	}
	eventbus.Publish(ctx, events.HTTPFinish{Route: events.RouteGraphiQL, Request: r, Status: status, Duration: time.Since(start)})
}
