// Package all registers every vendor scraper.
package all

import (
	_ "github.com/jvm-metadata/harvester/pkg/vendors/adoptium"
	_ "github.com/jvm-metadata/harvester/pkg/vendors/corretto"
	_ "github.com/jvm-metadata/harvester/pkg/vendors/openjdk"
)
