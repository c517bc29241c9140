/*
Copyright 2024 The KCP Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"math"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// ValidateFile validates every workload definition in f.
func ValidateFile(f *File) field.ErrorList {
	allErrs := field.ErrorList{}
	if len(f.Workloads) == 0 {
		return append(allErrs, field.Required(field.NewPath("workloads"), "at least one workload definition is required"))
	}

	names := make([]string, 0, len(f.Workloads))
	for name := range f.Workloads {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := f.Workloads[name]
		allErrs = append(allErrs, ValidateWorkloadDefinition(&def, field.NewPath("workloads").Key(name))...)
	}
	return allErrs
}

// ValidateWorkloadDefinition validates a single definition.
func ValidateWorkloadDefinition(def *WorkloadDefinition, fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}

	allErrs = append(allErrs, validateNames(def.Nodes, fldPath.Child("nodes"), false)...)
	allErrs = append(allErrs, validateNames(def.Services, fldPath.Child("services"), true)...)
	services := sets.New(def.Services...)

	declared := sets.New[string]()
	for i, a := range def.Associations {
		idxPath := fldPath.Child("associations").Index(i)
		allErrs = append(allErrs, validateAssociation(&a, services, idxPath)...)

		key := a.Source + "->" + a.Destination
		if declared.Has(key) {
			allErrs = append(allErrs, field.Duplicate(idxPath, key))
		}
		declared.Insert(key)
	}

	sources := make([]string, 0, len(def.Dependencies))
	for s := range def.Dependencies {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, source := range sources {
		depPath := fldPath.Child("dependencies").Key(source)
		if !services.Has(source) {
			allErrs = append(allErrs, field.NotFound(depPath, source))
			continue
		}
		for i, dst := range def.Dependencies[source] {
			if !declared.Has(source + "->" + dst) {
				allErrs = append(allErrs, field.Required(depPath.Index(i),
					fmt.Sprintf("dependency %s -> %s has no association metadata", source, dst)))
			}
		}
	}

	for i, e := range def.Entrypoints {
		if !services.Has(e) {
			allErrs = append(allErrs, field.NotFound(fldPath.Child("entrypoints").Index(i), e))
		}
	}

	if def.Weights == nil {
		allErrs = append(allErrs, field.Required(fldPath.Child("weights"), "latency, traffic and energy weights are required"))
	} else {
		wPath := fldPath.Child("weights")
		allErrs = append(allErrs, validateNumber(def.Weights.Latency, wPath.Child("latency"), false)...)
		allErrs = append(allErrs, validateNumber(def.Weights.Traffic, wPath.Child("traffic"), false)...)
		allErrs = append(allErrs, validateNumber(def.Weights.Energy, wPath.Child("energy"), false)...)
	}
	allErrs = append(allErrs, validateNumber(def.IdleNodePenalty, fldPath.Child("idleNodePenalty"), false)...)

	return allErrs
}

func validateAssociation(a *Association, services sets.Set[string], fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}

	for _, end := range []struct{ name, svc string }{{"source", a.Source}, {"destination", a.Destination}} {
		switch {
		case end.svc == "":
			allErrs = append(allErrs, field.Required(fldPath.Child(end.name), ""))
		case !services.Has(end.svc):
			allErrs = append(allErrs, field.NotFound(fldPath.Child(end.name), end.svc))
		}
	}

	allErrs = append(allErrs, validateNumber(a.TrafficCost, fldPath.Child("trafficCost"), true)...)
	allErrs = append(allErrs, validateNumber(a.ColocatedLatency, fldPath.Child("colocatedLatency"), true)...)
	allErrs = append(allErrs, validateNumber(a.RemoteLatency, fldPath.Child("remoteLatency"), true)...)
	return allErrs
}

func validateNumber(v *float64, fldPath *field.Path, nonNegative bool) field.ErrorList {
	switch {
	case v == nil:
		return field.ErrorList{field.Required(fldPath, "")}
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		return field.ErrorList{field.Invalid(fldPath, *v, "must be a finite number")}
	case nonNegative && *v < 0:
		return field.ErrorList{field.Invalid(fldPath, *v, "must not be negative")}
	}
	return nil
}

func validateNames(names []string, fldPath *field.Path, required bool) field.ErrorList {
	allErrs := field.ErrorList{}
	if required && len(names) == 0 {
		return append(allErrs, field.Required(fldPath, ""))
	}
	seen := sets.New[string]()
	for i, n := range names {
		if n == "" {
			allErrs = append(allErrs, field.Required(fldPath.Index(i), ""))
			continue
		}
		if seen.Has(n) {
			allErrs = append(allErrs, field.Duplicate(fldPath.Index(i), n))
		}
		seen.Insert(n)
	}
	return allErrs
}
