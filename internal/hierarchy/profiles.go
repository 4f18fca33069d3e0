package hierarchy

import "github.com/AGENTHIVE/internal/registry"

// LayerCapabilities returns the closed capability set for a layer
func LayerCapabilities(layer registry.Layer) []string {
	switch layer {
	case registry.LayerCECCA:
		return []string{
			"strategic_planning",
			"system_authority",
			"cross_organizational_coordination",
			"emergency_decision_making",
			"resource_allocation",
		}
	case registry.LayerBoard:
		return []string{
			"policy_enforcement",
			"governance_oversight",
			"compliance_monitoring",
			"risk_assessment",
			"ethics_validation",
		}
	case registry.LayerExecutive:
		return []string{
			"operational_coordination",
			"task_orchestration",
			"resource_management",
			"performance_monitoring",
			"emergency_response",
		}
	case registry.LayerStackChief:
		return []string{
			"domain_leadership",
			"subject_matter_expertise",
			"team_coordination",
			"workflow_orchestration",
			"specialization_management",
		}
	case registry.LayerSpecialist:
		return []string{
			"deep_domain_expertise",
			"complex_analysis",
			"system_integration",
			"advanced_processing",
			"decision_support",
		}
	default:
		return []string{
			"task_execution",
			"atomic_operations",
			"parallel_processing",
			"rule_based_actions",
			"resource_efficiency",
		}
	}
}

// LayerResources returns the default resource profile for a layer
func LayerResources(layer registry.Layer) registry.ResourceRequirements {
	switch layer {
	case registry.LayerCECCA:
		return registry.ResourceRequirements{CPUCores: 4, MemoryMB: 8192}
	case registry.LayerBoard:
		return registry.ResourceRequirements{CPUCores: 2, MemoryMB: 4096}
	case registry.LayerExecutive:
		return registry.ResourceRequirements{CPUCores: 2, MemoryMB: 4096}
	case registry.LayerStackChief:
		return registry.ResourceRequirements{CPUCores: 2, MemoryMB: 2048}
	case registry.LayerSpecialist:
		return registry.ResourceRequirements{CPUCores: 1, MemoryMB: 1024}
	default:
		return registry.ResourceRequirements{CPUCores: 1, MemoryMB: 256}
	}
}

// LayerRole returns the default functional role for a layer
func LayerRole(layer registry.Layer) registry.Role {
	switch layer {
	case registry.LayerCECCA, registry.LayerExecutive:
		return registry.RoleExecutive
	case registry.LayerBoard:
		return registry.RoleBoard
	case registry.LayerStackChief, registry.LayerSpecialist:
		return registry.RoleSpecialized
	default:
		return registry.RoleWorker
	}
}

// Distribution sizes each layer from the target population total,
// clamped to the per-layer minima and maxima. Micro receives the
// remainder, with a floor of total/2 when the upper layers already
// consume the whole budget.
func Distribution(total int) map[registry.Layer]int {
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}

	cecca := clamp(total/100, 1, 3)
	board := clamp(total/20, 5, 15)
	executive := clamp(total/10, 10, 25)
	stackChief := clamp(total/5, 20, 50)
	// Ceiling division keeps the layer totals summing to the target
	// for populations where the remainder lands in Micro.
	specialist := clamp((total+2)/3, 1, 200)

	used := cecca + board + executive + stackChief + specialist
	micro := total - used
	if micro <= 0 {
		micro = total / 2
	}

	return map[registry.Layer]int{
		registry.LayerCECCA:      cecca,
		registry.LayerBoard:      board,
		registry.LayerExecutive:  executive,
		registry.LayerStackChief: stackChief,
		registry.LayerSpecialist: specialist,
		registry.LayerMicro:      micro,
	}
}
