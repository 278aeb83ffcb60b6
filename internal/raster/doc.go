// Package raster provides the in-memory grid model shared by the analysis
// pipeline together with the two on-disk formats the archive uses: a
// single-band GeoTIFF subset for hourly precipitation tiles and scratch
// artifacts, and ESRI ASCII grids for curve-number rasters.
package raster
