// Package config loads the route table from disk and reads process defaults
// from the environment.
//
// Two route file formats are understood. The line format has one route per
// line:
//
//	# source_ip:source_port destination:destination_port
//	10.0.0.5:100 nana.zaza.com:100
//	*:8080 example.test:80
//
// Files ending in .yaml or .yml are read as
//
//	routes:
//	  - source: "10.0.0.5:100"
//	    destination: "nana.zaza.com:100"
package config
