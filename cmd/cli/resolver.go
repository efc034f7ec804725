package cli

import (
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/routing"
)

// CreateResolver loads the routing table. Without an archive map the built in
// table with literal container names is used; with one, container names are
// keys resolved against the configuration. The returned destinations carry
// resolved container names, fallback last.
func CreateResolver(appConfig *appconfig.AppConfig) (*routing.Resolver, []routing.Destination, error) {
	if appConfig.Archive.MapPath == "" {
		t := routing.DefaultTable()
		logger.Info("using built in archive map", "rules", len(t.Rules))
		return routing.NewResolver(t, nil), t.Destinations(), nil
	}

	fallback := routing.Destination{
		Container: appConfig.Archive.DefaultContainerKey,
		Subfolder: routing.FallbackSubfolder,
	}
	t, err := routing.LoadTable(appConfig.Archive.MapPath, fallback)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("loaded archive map", "path", appConfig.Archive.MapPath, "rules", len(t.Rules))

	// every blob can land in the fallback, so it must resolve up front
	fallbackName, err := appConfig.ContainerName(fallback.Container)
	if err != nil {
		return nil, nil, err
	}

	var destinations []routing.Destination
	for _, d := range t.Destinations()[:len(t.Destinations())-1] {
		name, err := appConfig.ContainerName(d.Container)
		if err != nil {
			// blobs routed here are reported unresolvable when they arrive
			logger.Warn("archive container key is not configured", "key", d.Container, "subfolder", d.Subfolder)
			continue
		}
		destinations = append(destinations, routing.Destination{Container: name, Subfolder: d.Subfolder})
	}
	destinations = append(destinations, routing.Destination{Container: fallbackName, Subfolder: fallback.Subfolder})

	return routing.NewResolver(t, appConfig), destinations, nil
}
