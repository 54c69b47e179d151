// Package domain models wildfire perimeter observations and the rules that
// consolidate them into a per-day timeline for the disaster map.
//
// # Data Sources
//
// Domestic perimeters come from the NIFC WFIGS Interagency Perimeters feature
// service. The downloader stages one GeoJSON file per incident per day:
//
//	<input>/disasters/<id>/spatial-data/disaster-perimeters/<incident>/<YYYYMMDD>.geojson
//
// The file name is the observation date. Useful feature properties:
//
//	poly_IncidentName            incident name ("N/A" when absent, older data)
//	poly_GISAcres                authoritative burned area in acres
//	irwin_FireDiscoveryDateTime  discovery time, epoch milliseconds
//	poly_PolygonDateTime         polygon capture time, epoch milliseconds
//
// International perimeters come from Copernicus EMS Rapid Mapping. Each
// activation (EMSRnnn) is published as a zip of product zips:
//
//	EMSR686_products.zip
//	  EMSR686_AOI01_DEL_MONIT01_v1.zip
//	    EMSR686_AOI01_DEL_MONIT01_observedEventA_v1.json
//	    EMSR686_AOI01_DEL_MONIT01_source_v1.dbf
//
// File-name dates are unreliable. The acquisition date is the src_date
// (dd/mm/yyyy) of the source table row whose eventphase is "Post-event".
// The incident name is the activation code and area is given in hectares.
//
// # Product Tiers
//
// Copernicus products for one activation and day may overlap. They are
// parsed into a [Product] once and ranked by [ResolveDuplicates]:
//
//	MONIT  monitoring, versioned by a trailing number (DEL_MONIT02, GRA_MONIT01)
//	DEL    delineation
//	GRA    grading
//	FEP    first estimate
//
// # Timeline
//
// Each incident gets exactly one perimeter per calendar day from its first
// observation onwards. Missing days repeat the last known perimeter with only
// the date changed ([FillGaps]). Day-over-day change is the symmetric
// difference of consecutive perimeters ([ComputeDifferences]); a day with no
// change repeats the previous difference so the map never goes blank.
package domain
