// Package icon converts application images into Windows ICO files and
// sanity-checks ICO headers before they are baked into shortcuts and
// installers.
package icon
